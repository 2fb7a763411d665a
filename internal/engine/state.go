package engine

import (
	"fmt"
	"sync"
)

// State is the frame-loop lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateRendering  State = "rendering"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// isValidTransition enforces the allowed state machine edges.
func isValidTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRendering || to == StateFailed
	case StateRendering:
		return to == StateFinalizing || to == StateFailed
	case StateFinalizing:
		return to == StateDone || to == StateFailed
	case StateDone, StateFailed:
		return to == StateIdle
	default:
		return false
	}
}

type stateMachine struct {
	mu      sync.RWMutex
	current State
}

func (m *stateMachine) set(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !isValidTransition(m.current, to) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current, to)
	}
	m.current = to
	return nil
}

func (m *stateMachine) get() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
