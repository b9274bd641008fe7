// Package source 定义视频帧来源（本地文件 / 网络流）的统一接口
//
// 结束用 io.EOF 表示；打开失败返回 *OpenError（errors.Is(err, ErrSourceUnavailable)）；
// 已读取的帧无法解码返回 ErrDecodeFault。
package source

import (
	"context"
	"image"
	"math"
	"path/filepath"
	"strings"
)

// Kind 来源类型
type Kind string

const (
	KindFile Kind = "file"
	KindLive Kind = "live-url"
)

// DefaultFallbackFPS 解码器帧率无效时使用
const DefaultFallbackFPS = 30.0

// maxPlausibleFPS 超过该值视为解码器上报错误
const maxPlausibleFPS = 1000.0

// Descriptor 打开时确定的来源描述
// TotalFrames / Duration 仅供展示，不参与循环控制
type Descriptor struct {
	Source      string  `json:"source"`
	Kind        Kind    `json:"kind"`
	NominalFPS  float64 `json:"nominal_fps"`
	TotalFrames int64   `json:"total_frames"` // 0 表示未知
	Duration    float64 `json:"duration"`     // 秒，0 表示未知
}

// IsLive 是否为网络流
func (d Descriptor) IsLive() bool {
	return d.Kind == KindLive
}

// Frame 已读取（尚未解码）的一帧
type Frame struct {
	Index     int64
	Timestamp float64 // 源时间（秒）
}

// Source 一个已打开的帧来源，仅供单个会话顺序使用
type Source interface {
	Descriptor() Descriptor
	// Next 读取下一帧；结束时返回 io.EOF
	Next(ctx context.Context) (Frame, error)
	// Decode 解码最近一次 Next 读到的帧
	Decode() (image.Image, error)
	// Seek 定位到指定帧，下一次 Next 返回该帧
	Seek(frameIndex int64) error
	Close() error
}

// Opener 打开帧来源
type Opener interface {
	Open(ctx context.Context, src string) (Source, error)
}

var urlSchemes = []string{"rtsp://", "http://", "https://"}

// IsURL 是否为带协议前缀的网络地址
func IsURL(src string) bool {
	lower := strings.ToLower(src)
	for _, scheme := range urlSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// Normalize 清理调用方传入的来源字符串
// 去掉首尾空白与引号；URL 原样保留，本地路径做分隔符规范化
func Normalize(raw string) (string, Kind) {
	src := strings.TrimSpace(raw)
	src = strings.Trim(src, `"'`)
	src = strings.TrimSpace(src)

	if IsURL(src) {
		return src, KindLive
	}
	if src == "" {
		return src, KindFile
	}
	return filepath.Clean(filepath.FromSlash(src)), KindFile
}

// SanitizeFPS 帧率 <= 0、> 1000 或 NaN 时替换为 fallback
func SanitizeFPS(fps, fallback float64) float64 {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 || fps > maxPlausibleFPS {
		return fallback
	}
	return fps
}

// Duration 总帧数与帧率均已知时返回时长，否则 0
func Duration(totalFrames int64, fps float64) float64 {
	if totalFrames <= 0 || fps <= 0 {
		return 0
	}
	return float64(totalFrames) / fps
}

// FrameTimestamp 优先使用解码器时间戳（毫秒，>0 时），否则按帧序号推算
func FrameTimestamp(posMsec float64, frameIndex int64, fps float64) float64 {
	if posMsec > 0 && !math.IsNaN(posMsec) && !math.IsInf(posMsec, 0) {
		return posMsec / 1000.0
	}
	if fps <= 0 {
		return 0
	}
	return float64(frameIndex) / fps
}

// NewDescriptor 根据解码器上报的原始值构建描述（帧率已清洗）
func NewDescriptor(src string, kind Kind, rawFPS float64, rawTotalFrames float64, fallbackFPS float64) Descriptor {
	fps := SanitizeFPS(rawFPS, fallbackFPS)
	var total int64
	if rawTotalFrames > 0 && !math.IsInf(rawTotalFrames, 0) {
		total = int64(rawTotalFrames)
	}
	return Descriptor{
		Source:      src,
		Kind:        kind,
		NominalFPS:  fps,
		TotalFrames: total,
		Duration:    Duration(total, fps),
	}
}
