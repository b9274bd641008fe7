package source

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFPS(t *testing.T) {
	tests := []struct {
		name     string
		fps      float64
		expected float64
	}{
		{"zero", 0, 30.0},
		{"negative", -25, 30.0},
		{"too large", 1000.5, 30.0},
		{"huge", 90000, 30.0},
		{"nan", math.NaN(), 30.0},
		{"inf", math.Inf(1), 30.0},
		{"upper bound", 1000, 1000},
		{"pal", 25, 25},
		{"ntsc", 29.97, 29.97},
		{"tiny", 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFPS(tt.fps, DefaultFallbackFPS))
		})
	}
}

func TestNormalize(t *testing.T) {
	src, kind := Normalize("  \"rtsp://cam.local:554/stream1\" ")
	assert.Equal(t, "rtsp://cam.local:554/stream1", src)
	assert.Equal(t, KindLive, kind)

	// URL 不做路径规范化（否则 // 会被折叠）
	src, kind = Normalize("HTTP://host//a/../b.mp4")
	assert.Equal(t, "HTTP://host//a/../b.mp4", src)
	assert.Equal(t, KindLive, kind)

	src, kind = Normalize("'/tmp/uploads/./a//clip.mp4'")
	assert.Equal(t, filepath.Clean("/tmp/uploads/a/clip.mp4"), src)
	assert.Equal(t, KindFile, kind)

	src, kind = Normalize("   ")
	assert.Equal(t, "", src)
	assert.Equal(t, KindFile, kind)
}

func TestFrameTimestamp(t *testing.T) {
	// 有效的解码器时间戳
	assert.InDelta(t, 2.5, FrameTimestamp(2500, 10, 30), 1e-9)
	// 时间戳缺失时按帧序号推算
	assert.InDelta(t, 2.0, FrameTimestamp(0, 60, 30), 1e-9)
	assert.InDelta(t, 1.0, FrameTimestamp(-1, 25, 25), 1e-9)
	assert.Equal(t, 0.0, FrameTimestamp(0, 10, 0))
}

func TestNewDescriptor(t *testing.T) {
	d := NewDescriptor("/tmp/a.mp4", KindFile, 0, 300, DefaultFallbackFPS)
	assert.Equal(t, 30.0, d.NominalFPS)
	assert.Equal(t, int64(300), d.TotalFrames)
	assert.InDelta(t, 10.0, d.Duration, 1e-9)
	assert.False(t, d.IsLive())

	d = NewDescriptor("rtsp://cam", KindLive, 25, -1, DefaultFallbackFPS)
	assert.Equal(t, 25.0, d.NominalFPS)
	assert.Equal(t, int64(0), d.TotalFrames)
	assert.Equal(t, 0.0, d.Duration)
	assert.True(t, d.IsLive())
}

func TestOpenError(t *testing.T) {
	cause := errors.New("backend refused")
	err := error(NewOpenError("rtsp://cam", cause))

	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "Could not open source: rtsp://cam")

	var openErr *OpenError
	assert.True(t, errors.As(err, &openErr))
	assert.Equal(t, "rtsp://cam", openErr.Source)
}
