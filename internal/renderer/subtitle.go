package renderer

import (
	"fmt"
	"io"
	"math"
)

// WriteSRT writes a single cue that shows text for the whole output duration.
// duration <= 0 keeps the cue open for a day, which every player clamps to the stream.
func WriteSRT(w io.Writer, text string, duration float64) error {
	if duration <= 0 {
		duration = 24 * 3600
	}
	_, err := fmt.Fprintf(w, "1\n%s --> %s\n%s\n\n", srtTime(0), srtTime(duration), text)
	return err
}

func srtTime(sec float64) string {
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
