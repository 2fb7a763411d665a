package source

import (
	"image"
	"image/draw"
)

// copyInto draws src onto dst at the origin, scaling nothing.
func copyInto(dst *image.RGBA, src image.Image) {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect == dst.Rect && rgba.Stride == dst.Stride {
		copy(dst.Pix, rgba.Pix)
		return
	}
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
}
