package source

import (
	"image"
	"io"
	"sync"

	"github.com/ivlev/videdit/internal/system"
)

// Memory replays a fixed list of images, one frame per 1/SampleRate seconds.
// It serves still-image inputs and tests.
type Memory struct {
	frames     []image.Image
	sampleRate float64
	width      int
	height     int
	index      int

	mu     sync.Mutex
	closed bool
}

func NewMemory(frames []image.Image, sampleRate float64) *Memory {
	m := &Memory{frames: frames, sampleRate: sampleRate}
	if len(frames) > 0 {
		b := frames[0].Bounds()
		m.width, m.height = b.Dx(), b.Dy()
	}
	return m
}

func (m *Memory) Size() (int, int) { return m.width, m.height }

func (m *Memory) Next() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.index >= len(m.frames) {
		return Frame{}, io.EOF
	}
	src := m.frames[m.index]
	img := system.GetFrame(image.Rect(0, 0, m.width, m.height))
	copyInto(img, src)
	f := Frame{Image: img, Index: m.index, Time: float64(m.index) / m.sampleRate}
	m.index++
	return f, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
