package session

import (
	"context"
	"log"
	"time"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

// DefaultEventBuffer is the default per-session event channel size.
const DefaultEventBuffer = 1024

// BackoffPolicy bounds the delay between reconnect attempts. The delay
// doubles after each failed attempt, from Min up to Max, and resets once a
// session reaches streaming.
type BackoffPolicy struct {
	Min time.Duration
	Max time.Duration
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.Min <= 0 {
		p.Min = time.Second
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	return p
}

// Supervisor re-runs the full connect → authenticate → stream sequence for
// one endpoint whenever the session ends, per the endpoint's reconnect
// policy. With reconnect disabled a single attempt is made.
type Supervisor struct {
	endpoint model.ServerEndpoint
	policy   BackoffPolicy
	tracker  *Tracker
	out      chan model.RoutedEvent
}

// NewSupervisor creates a supervisor for one endpoint. buffer sizes the
// session's outbound event channel; zero selects DefaultEventBuffer.
func NewSupervisor(endpoint model.ServerEndpoint, policy BackoffPolicy, buffer int) *Supervisor {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Supervisor{
		endpoint: endpoint,
		policy:   policy.normalized(),
		tracker:  newTracker(endpoint.Name),
		out:      make(chan model.RoutedEvent, buffer),
	}
}

// Name returns the endpoint's configured identity.
func (s *Supervisor) Name() string { return s.endpoint.Name }

// Events returns the session's outbound event channel. It is closed when
// Run returns.
func (s *Supervisor) Events() <-chan model.RoutedEvent { return s.out }

// Status returns a snapshot of the session for the status API.
func (s *Supervisor) Status() Status { return s.tracker.Snapshot() }

// Run blocks until the session terminates permanently or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.out)
	defer s.tracker.setState(StateTerminated)

	backoff := s.policy.Min
	for {
		client := &Client{endpoint: s.endpoint, out: s.out, tracker: s.tracker}
		err := client.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		reachedStreaming := s.tracker.State() == StateStreaming
		if err != nil {
			s.tracker.fail(err)
			log.Printf("session: %s: %v", s.endpoint.Name, err)
		}

		if !s.endpoint.Reconnect {
			return
		}

		if reachedStreaming {
			backoff = s.policy.Min
		}
		log.Printf("session: %s: reconnecting in %s", s.endpoint.Name, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > s.policy.Max {
			backoff = s.policy.Max
		}
	}
}
