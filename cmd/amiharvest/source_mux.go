package main

import (
	"context"
	"sync"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

// DefaultBusBuffer is the default capacity of the aggregated event bus.
const DefaultBusBuffer = 50_000

// EventSource is one independent producer of routed events. A source's
// channel closes when the source terminates permanently.
type EventSource interface {
	Name() string
	Events() <-chan model.RoutedEvent
}

// SourceMultiplexer merges every session's event channel into the single
// bounded bus the aggregator drains. Per-source order is preserved; the
// bus closes once every source has terminated.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources []EventSource
	bus     chan model.RoutedEvent

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSourceMultiplexer(parent context.Context, sources []EventSource, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultBusBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		bus:     make(chan model.RoutedEvent, buffer),
	}
}

func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		if len(m.sources) == 0 {
			m.closeOutput()
			return
		}

		for _, src := range m.sources {
			src := src
			m.wg.Add(1)
			go m.forward(src)
		}

		go func() {
			m.wg.Wait()
			m.closeOutput()
		}()
	})
}

func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
		m.closeOutput()
	})
}

func (m *SourceMultiplexer) HasSources() bool {
	return len(m.sources) > 0
}

// Events returns the aggregated bus.
func (m *SourceMultiplexer) Events() <-chan model.RoutedEvent {
	return m.bus
}

func (m *SourceMultiplexer) forward(src EventSource) {
	defer m.wg.Done()

	events := src.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Message == nil {
				continue
			}
			select {
			case m.bus <- ev:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *SourceMultiplexer) closeOutput() {
	m.closeOnce.Do(func() {
		close(m.bus)
	})
}
