package session

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateStreaming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of one session, as served by the
// status API.
type Status struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Attempts  int64  `json:"connect_attempts"`
	Forwarded int64  `json:"events_forwarded"`
	Dropped   int64  `json:"frames_dropped"`
	LastError string `json:"last_error,omitempty"`
}

// Tracker holds the observable state of one session across connection
// attempts. Safe for concurrent reads while the session runs.
type Tracker struct {
	name      string
	state     atomic.Int32
	attempts  atomic.Int64
	forwarded atomic.Int64
	dropped   atomic.Int64

	mu      sync.Mutex
	lastErr string
}

func newTracker(name string) *Tracker {
	return &Tracker{name: name}
}

func (t *Tracker) setState(s State) { t.state.Store(int32(s)) }

// State returns the current lifecycle state.
func (t *Tracker) State() State { return State(t.state.Load()) }

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.lastErr = err.Error()
	t.mu.Unlock()
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	lastErr := t.lastErr
	t.mu.Unlock()
	return Status{
		Name:      t.name,
		State:     t.State().String(),
		Attempts:  t.attempts.Load(),
		Forwarded: t.forwarded.Load(),
		Dropped:   t.dropped.Load(),
		LastError: lastErr,
	}
}
