package engine

import (
	"image"
	"image/draw"
)

// ToGray 转为单通道灰度图，已是灰度时原样返回
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}
