package renderer

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/settings"
)

// Caption layout, in pixels.
const (
	captionPadding    = 20
	captionMargin     = 30
	captionLineFactor = 1.5
	shadowOffset      = 2
	shadowBlur        = 4
)

var shadowColor = color.NRGBA{A: 204} // rgba(0,0,0,0.8)

var (
	fontsOnce sync.Once
	sansFont  *opentype.Font
	monoFont  *opentype.Font
)

func loadFonts() {
	fontsOnce.Do(func() {
		// Parse failures leave the font nil and faceFor falls back to basicfont.
		sansFont, _ = opentype.Parse(gobold.TTF)
		monoFont, _ = opentype.Parse(gomonobold.TTF)
	})
}

type faceKey struct {
	mono bool
	size float64
}

// CaptionRenderer draws caption overlays. Faces are cached per instance,
// so one renderer must not be shared between goroutines.
type CaptionRenderer struct {
	faces map[faceKey]font.Face
}

func NewCaptionRenderer() *CaptionRenderer {
	loadFonts()
	return &CaptionRenderer{faces: make(map[faceKey]font.Face)}
}

// DrawCaption draws c into dst once, relative to anchor.
func DrawCaption(dst *image.RGBA, c effects.DrawCaption, anchor image.Rectangle) {
	NewCaptionRenderer().Draw(dst, c, anchor)
}

func isMono(family string) bool {
	f := strings.ToLower(family)
	for _, m := range []string{"mono", "courier", "consol", "menlo"} {
		if strings.Contains(f, m) {
			return true
		}
	}
	return false
}

func (r *CaptionRenderer) faceFor(family string, size float64) font.Face {
	key := faceKey{mono: isMono(family), size: size}
	if f, ok := r.faces[key]; ok {
		return f
	}
	src := sansFont
	if key.mono {
		src = monoFont
	}
	var face font.Face = basicfont.Face7x13
	if src != nil {
		if f, err := opentype.NewFace(src, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull}); err == nil {
			face = f
		}
	}
	r.faces[key] = face
	return face
}

// Draw renders the caption. It never fails: an empty text draws nothing and
// a font that cannot be loaded falls back to a fixed bitmap face.
func (r *CaptionRenderer) Draw(dst *image.RGBA, c effects.DrawCaption, anchor image.Rectangle) {
	text := strings.Join(strings.Fields(c.Text), " ")
	if text == "" || anchor.Empty() {
		return
	}
	st := c.Style
	face := r.faceFor(st.FontFamily, st.FontSize)
	m := face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	textW := font.MeasureString(face, text).Ceil()
	boxH := int(st.FontSize * captionLineFactor)
	if boxH < ascent+descent {
		boxH = ascent + descent
	}

	var centerY int
	switch c.Anchor.Position {
	case settings.PositionTop:
		centerY = anchor.Min.Y + captionPadding + boxH/2
	case settings.PositionMiddle:
		centerY = anchor.Min.Y + anchor.Dy()/2
	default:
		centerY = anchor.Max.Y - captionPadding - boxH/2
	}
	var x int
	switch c.Anchor.Align {
	case settings.AlignLeft:
		x = anchor.Min.X + captionMargin
	case settings.AlignRight:
		x = anchor.Max.X - captionMargin - textW
	default:
		x = anchor.Min.X + (anchor.Dx()-textW)/2
	}
	baseline := centerY + (ascent-descent)/2

	opacity := st.Opacity
	if st.Background.A > 0 {
		plate := image.Rect(x-captionPadding, centerY-boxH/2, x+textW+captionPadding, centerY+boxH/2)
		draw.Draw(dst, plate.Intersect(dst.Rect), image.NewUniform(withOpacity(st.Background, opacity)), image.Point{}, draw.Over)
	}

	margin := shadowBlur + shadowOffset
	area := image.Rect(x, baseline-ascent, x+textW, baseline+descent).Inset(-margin)
	mask := image.NewAlpha(area)
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)

	if st.Shadow {
		blurred := boxBlur(mask, shadowBlur)
		off := image.Pt(shadowOffset, shadowOffset)
		draw.DrawMask(dst, area.Add(off), image.NewUniform(withOpacity(shadowColor, opacity)), image.Point{}, blurred, area.Min, draw.Over)
	}
	draw.DrawMask(dst, area, image.NewUniform(withOpacity(st.Color, opacity)), image.Point{}, mask, area.Min, draw.Over)
}

func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}
	c.A = uint8(float64(c.A)*opacity + 0.5)
	return c
}

// boxBlur returns a copy of src blurred with a separable box of the given radius.
func boxBlur(src *image.Alpha, radius int) *image.Alpha {
	b := src.Rect
	w, h := b.Dx(), b.Dy()
	tmp := make([]int, w*h)
	out := image.NewAlpha(b)
	win := 2*radius + 1

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		sum := 0
		for x := -radius; x < w+radius; x++ {
			if x+radius < w && x+radius >= 0 {
				sum += int(row[x+radius])
			}
			if x-radius-1 >= 0 && x-radius-1 < w {
				sum -= int(row[x-radius-1])
			}
			if x >= 0 && x < w {
				tmp[y*w+x] = sum
			}
		}
	}
	for x := 0; x < w; x++ {
		sum := 0
		for y := -radius; y < h+radius; y++ {
			if y+radius < h && y+radius >= 0 {
				sum += tmp[(y+radius)*w+x]
			}
			if y-radius-1 >= 0 && y-radius-1 < h {
				sum -= tmp[(y-radius-1)*w+x]
			}
			if y >= 0 && y < h {
				out.Pix[y*out.Stride+x] = uint8(sum / (win * win))
			}
		}
	}
	return out
}
