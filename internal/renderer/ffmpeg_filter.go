package renderer

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/settings"
)

// FilterOptions tune the generated graph for the local ffmpeg build.
type FilterOptions struct {
	// FontFile is passed to drawtext when set; builds without fontconfig need it.
	FontFile string
}

// Horizontal and vertical drawtext placement, matching the frame-loop renderer.
var (
	drawtextX = map[settings.Alignment]string{
		settings.AlignLeft:   "30",
		settings.AlignCenter: "(w-text_w)/2",
		settings.AlignRight:  "w-text_w-30",
	}
	drawtextY = map[settings.Position]string{
		settings.PositionTop:    "40",
		settings.PositionMiddle: "(h-text_h)/2",
		settings.PositionBottom: "h-text_h-40",
	}
)

// VideoFilter builds the -vf expression for every video operation in the chain.
// Trim is applied on the input side and audio ops go to AudioFilter.
func VideoFilter(chain effects.Chain, opts FilterOptions) string {
	var parts []string
	for _, op := range chain.Ops {
		switch o := op.(type) {
		case effects.ColorAdjust:
			parts = append(parts, eqFilter(o))
		case effects.Rotate:
			parts = append(parts, "rotate="+num(o.Degrees*math.Pi/180))
		case effects.Scale:
			f := num(o.Factor)
			parts = append(parts, fmt.Sprintf("scale=trunc(iw*%s/2)*2:trunc(ih*%s/2)*2", f, f))
		case effects.SetPlaybackRate:
			parts = append(parts, "setpts=PTS/"+num(o.Rate))
		case effects.DrawBackgroundBox:
			r := o.Rect
			parts = append(parts, fmt.Sprintf("drawbox=x=iw*%s:y=ih*%s:w=iw*%s:h=ih*%s:color=%s:t=fill",
				num(r.X), num(r.Y), num(r.W), num(r.H), ffColor(o.Color, 1)))
		case effects.DrawCaption:
			parts = append(parts, drawtextFilter(o, opts))
		}
	}
	return strings.Join(parts, ",")
}

// AudioFilter builds the -af expression. A playback rate other than 1 adds a
// tempo stage so audio keeps pace with the rescaled video timestamps.
func AudioFilter(chain effects.Chain) string {
	if chain.Muted() {
		return ""
	}
	var parts []string
	for _, op := range chain.Ops {
		switch o := op.(type) {
		case effects.AudioVolume:
			parts = append(parts, "volume="+num(o.Multiplier))
		case effects.AudioTempo:
			parts = append(parts, atempo(o.Multiplier)...)
		}
	}
	if rate := chain.PlaybackRate(); rate != 1 {
		parts = append(parts, atempo(rate)...)
	}
	return strings.Join(parts, ",")
}

// TempoFactors splits a tempo multiplier into atempo-sized steps within [0.5, 2].
func TempoFactors(m float64) []float64 {
	if m <= 0 || math.IsInf(m, 0) || math.IsNaN(m) {
		return nil
	}
	var out []float64
	for m > 2 {
		out = append(out, 2)
		m /= 2
	}
	for m < 0.5 {
		out = append(out, 0.5)
		m /= 0.5
	}
	if math.Abs(m-1) > 1e-9 || len(out) == 0 {
		out = append(out, m)
	}
	return out
}

func atempo(m float64) []string {
	var out []string
	for _, f := range TempoFactors(m) {
		out = append(out, "atempo="+num(f))
	}
	return out
}

func eqFilter(c effects.ColorAdjust) string {
	var eq []string
	if c.Brightness != 0 {
		eq = append(eq, "brightness="+num(c.Brightness))
	}
	if c.Contrast != 0 {
		// eq's contrast is multiplicative with 1 as identity.
		eq = append(eq, "contrast="+num(1+c.Contrast))
	}
	if c.Saturation != 1 {
		eq = append(eq, "saturation="+num(c.Saturation))
	}
	return "eq=" + strings.Join(eq, ":")
}

func drawtextFilter(c effects.DrawCaption, opts FilterOptions) string {
	var b strings.Builder
	b.WriteString("drawtext=")
	if opts.FontFile != "" {
		fmt.Fprintf(&b, "fontfile=%s:", EscapeText(opts.FontFile))
	}
	x, ok := drawtextX[c.Anchor.Align]
	if !ok {
		x = drawtextX[settings.AlignCenter]
	}
	y, ok := drawtextY[c.Anchor.Position]
	if !ok {
		y = drawtextY[settings.PositionBottom]
	}
	// expansion=none keeps '%' and backslashes in the caption literal.
	fmt.Fprintf(&b, "text=%s:expansion=none:fontcolor=%s:fontsize=%s:x=%s:y=%s:alpha=%s",
		EscapeText(c.Text), ffColor(c.Style.Color, 1), num(c.Style.FontSize), x, y, num(c.Style.Opacity))
	if c.Style.Shadow {
		b.WriteString(":shadowcolor=black@0.8:shadowx=2:shadowy=2")
	}
	return b.String()
}

// A filter option value is unescaped twice by ffmpeg: first by the graph
// parser (which splits on "[],;"), then by the option parser (which splits
// on ":"). Escaping runs in the reverse order.
var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeText makes s a literal, unquoted filter option value inside a -vf graph.
func EscapeText(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(s))
}

// ffColor formats c as 0xRRGGBB@alpha, with the colour's own alpha scaled by opacity.
func ffColor(c color.NRGBA, opacity float64) string {
	a := float64(c.A) / 255 * opacity
	return fmt.Sprintf("0x%02X%02X%02X@%s", c.R, c.G, c.B, strconv.FormatFloat(a, 'f', 3, 64))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
