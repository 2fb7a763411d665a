package renderer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/videdit/internal/effects"
)

// Geometry is the rotate+scale applied when a source frame is placed on the output buffer.
type Geometry struct {
	Degrees float64
	Scale   float64
}

// GeometryOf collects rotation and scale from a chain.
func GeometryOf(chain effects.Chain) Geometry {
	g := Geometry{Scale: 1}
	for _, op := range chain.Ops {
		switch o := op.(type) {
		case effects.Rotate:
			g.Degrees = o.Degrees
		case effects.Scale:
			g.Scale = o.Factor
		}
	}
	return g
}

// OutputSize returns the even frame size for a w x h source.
func (g Geometry) OutputSize(w, h int) image.Rectangle {
	return image.Rect(0, 0, effects.EvenDimension(w, g.Scale), effects.EvenDimension(h, g.Scale))
}

// Place clears dst and draws src rotated clockwise about its centre and
// scaled to fit dst. Uncovered corners stay black, like ffmpeg's rotate.
func (g Geometry) Place(dst *image.RGBA, src image.Image) {
	fillBlack(dst)
	sb := src.Bounds()
	db := dst.Bounds()
	if g.Degrees == 0 && sb.Size() == db.Size() {
		draw.Draw(dst, db, src, sb.Min, draw.Src)
		return
	}
	if g.Degrees == 0 {
		draw.ApproxBiLinear.Scale(dst, db, src, sb, draw.Src, nil)
		return
	}

	sx := float64(db.Dx()) / float64(sb.Dx())
	sy := float64(db.Dy()) / float64(sb.Dy())
	rad := g.Degrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	// dst = R * S * (p - srcCentre) + dstCentre
	a, b := cos*sx, -sin*sy
	c, d := sin*sx, cos*sy
	csx := float64(sb.Min.X) + float64(sb.Dx())/2
	csy := float64(sb.Min.Y) + float64(sb.Dy())/2
	cdx := float64(db.Min.X) + float64(db.Dx())/2
	cdy := float64(db.Min.Y) + float64(db.Dy())/2
	m := f64.Aff3{
		a, b, cdx - (a*csx + b*csy),
		c, d, cdy - (c*csx + d*csy),
	}
	draw.BiLinear.Transform(dst, m, src, sb, draw.Over, nil)
}

func fillBlack(dst *image.RGBA) {
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = 0, 0, 0, 0xff
	}
}

// ApplyColor adjusts brightness, contrast and saturation in place.
// Brightness shifts by b*255, contrast scales around mid-grey by 1+c and
// saturation mixes each pixel with its Rec.601 luma.
func ApplyColor(img *image.RGBA, c effects.ColorAdjust) {
	if c.Brightness == 0 && c.Contrast == 0 && c.Saturation == 1 {
		return
	}
	var lut [256]float64
	for i := range lut {
		v := float64(i) + c.Brightness*255
		lut[i] = (v-128)*(1+c.Contrast) + 128
	}
	s := c.Saturation
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, b := lut[img.Pix[i]], lut[img.Pix[i+1]], lut[img.Pix[i+2]]
		if s != 1 {
			l := 0.299*r + 0.587*g + 0.114*b
			r, g, b = l+(r-l)*s, l+(g-l)*s, l+(b-l)*s
		}
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = clamp8(r), clamp8(g), clamp8(b)
	}
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// FillBand draws a background box given in frame fractions.
func FillBand(dst *image.RGBA, box effects.DrawBackgroundBox) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	r := image.Rect(
		b.Min.X+int(box.Rect.X*w), b.Min.Y+int(box.Rect.Y*h),
		b.Min.X+int(math.Ceil((box.Rect.X+box.Rect.W)*w)), b.Min.Y+int(math.Ceil((box.Rect.Y+box.Rect.H)*h)),
	).Intersect(b)
	draw.Draw(dst, r, image.NewUniform(color.Color(box.Color)), image.Point{}, draw.Over)
}
