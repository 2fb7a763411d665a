package engine

import "sync"

// tracker turns raw progress into a monotonic stream clamped to [0,100]
// that ends with exactly one done (at 100) or failed event.
type tracker struct {
	mu       sync.Mutex
	fn       func(Progress)
	last     float64
	st       Stage
	finished bool
}

func newTracker(fn func(Progress)) *tracker {
	return &tracker{fn: fn}
}

func (t *tracker) emit(p Progress) {
	if t.fn != nil {
		t.fn(p)
	}
}

// stage announces a new stage without moving the percentage.
func (t *tracker) stage(s Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.st == s {
		return
	}
	t.st = s
	t.emit(Progress{Percent: t.last, Stage: s})
}

// update reports percent; values below the last one are ignored.
func (t *tracker) update(percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent <= t.last {
		return
	}
	t.last = percent
	t.emit(Progress{Percent: percent, Stage: t.st})
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.last = 100
	t.emit(Progress{Percent: 100, Stage: StageDone})
}

func (t *tracker) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.emit(Progress{Percent: t.last, Stage: StageFailed})
}
