// Package opencv 基于 gocv（OpenCV VideoCapture）的帧来源实现
package opencv

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"posture-monitor/internal/source"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Opener 通过 OpenCV 打开本地文件或 rtsp/http 流
type Opener struct {
	fallbackFPS float64
	logger      *zap.Logger
}

// NewOpener 创建 OpenCV Opener
func NewOpener(fallbackFPS float64, logger *zap.Logger) *Opener {
	if fallbackFPS <= 0 {
		fallbackFPS = source.DefaultFallbackFPS
	}
	return &Opener{fallbackFPS: fallbackFPS, logger: logger}
}

// Open 打开来源；失败时返回 *source.OpenError
func (o *Opener) Open(ctx context.Context, raw string) (source.Source, error) {
	src, kind := source.Normalize(raw)
	if src == "" {
		return nil, source.NewOpenError(raw, fmt.Errorf("empty source"))
	}
	if err := ctx.Err(); err != nil {
		return nil, source.NewOpenError(src, err)
	}

	capture, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, source.NewOpenError(src, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, source.NewOpenError(src, nil)
	}

	desc := source.NewDescriptor(
		src,
		kind,
		capture.Get(gocv.VideoCaptureFPS),
		capture.Get(gocv.VideoCaptureFrameCount),
		o.fallbackFPS,
	)

	o.logger.Info("Video source opened",
		zap.String("source", src),
		zap.String("kind", string(desc.Kind)),
		zap.Float64("fps", desc.NominalFPS),
		zap.Int64("total_frames", desc.TotalFrames),
		zap.Float64("duration", desc.Duration),
	)

	return &Capture{
		capture: capture,
		frame:   gocv.NewMat(),
		desc:    desc,
	}, nil
}

// Capture 一个已打开的 VideoCapture
type Capture struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
	desc    source.Descriptor
	next    int64 // 下一次 Read 得到的帧序号
	hasRead bool

	closeOnce sync.Once
	closeErr  error
}

// Descriptor 来源描述
func (c *Capture) Descriptor() source.Descriptor {
	return c.desc
}

// Next 读取下一帧（阻塞直到解码器返回）
func (c *Capture) Next(ctx context.Context) (source.Frame, error) {
	if err := ctx.Err(); err != nil {
		return source.Frame{}, err
	}
	if !c.capture.IsOpened() || !c.capture.Read(&c.frame) {
		return source.Frame{}, io.EOF
	}

	index := c.next
	c.next++
	c.hasRead = true

	ts := source.FrameTimestamp(c.capture.Get(gocv.VideoCapturePosMsec), index, c.desc.NominalFPS)
	return source.Frame{Index: index, Timestamp: ts}, nil
}

// Decode 将当前帧转换为灰度图
func (c *Capture) Decode() (image.Image, error) {
	if !c.hasRead || c.frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame at index %d", source.ErrDecodeFault, c.next-1)
	}

	gray := gocv.NewMat()
	defer gray.Close()

	switch c.frame.Channels() {
	case 1:
		c.frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(c.frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(c.frame, &gray, gocv.ColorBGRToGray)
	}
	if gray.Empty() {
		return nil, fmt.Errorf("%w: color conversion failed at index %d", source.ErrDecodeFault, c.next-1)
	}

	img, err := gray.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrDecodeFault, err)
	}
	return img, nil
}

// Seek 定位到指定帧
func (c *Capture) Seek(frameIndex int64) error {
	if frameIndex < 0 {
		frameIndex = 0
	}
	c.capture.Set(gocv.VideoCapturePosFrames, float64(frameIndex))
	c.next = frameIndex
	c.hasRead = false
	return nil
}

// Close 释放解码器，可重复调用
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		_ = c.frame.Close()
		c.closeErr = c.capture.Close()
	})
	return c.closeErr
}
