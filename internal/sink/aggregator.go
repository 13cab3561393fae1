package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/amiharvest/internal/amiproto"
	"github.com/tinytelemetry/amiharvest/internal/model"
)

// RuleApplier executes the configured database inserts for one event.
// Implementations absorb their own failures; Apply never blocks longer
// than one synchronous insert per matching rule.
type RuleApplier interface {
	Apply(source string, msg *model.Message)
}

// Aggregator is the single consumer of the event bus. Each event first
// passes through the rule applier, then is appended to the current log
// file. The two writes are deliberately not transactional.
type Aggregator struct {
	files   *FileManager
	rules   RuleApplier
	now     func() time.Time
	written atomic.Int64
}

// NewAggregator creates an aggregator writing through files. rules may be
// nil when no mapping rules are configured.
func NewAggregator(files *FileManager, rules RuleApplier) *Aggregator {
	return &Aggregator{
		files: files,
		rules: rules,
		now:   time.Now,
	}
}

// EventsWritten returns the number of records appended so far.
func (a *Aggregator) EventsWritten() int64 { return a.written.Load() }

// Run drains events until the bus closes or ctx is cancelled. A filesystem
// failure is returned and aborts the pipeline; everything else is absorbed
// to a log line.
func (a *Aggregator) Run(ctx context.Context, events <-chan model.RoutedEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if a.rules != nil {
				a.rules.Apply(ev.Source, ev.Message)
			}

			line, err := encodeRecord(ev)
			if err != nil {
				log.Printf("sink: encode event from %s: %v", ev.Source, err)
				continue
			}
			f, err := a.files.Writer(ev.Source, a.now())
			if err != nil {
				return err
			}
			if _, err := f.Write(line); err != nil {
				return fmt.Errorf("sink: append event from %s: %w", ev.Source, err)
			}
			a.written.Add(1)
		}
	}
}

// encodeRecord serializes one event as
// "source::timestamp-millis::json" plus the protocol terminator.
func encodeRecord(ev model.RoutedEvent) ([]byte, error) {
	payload, err := json.Marshal(ev.Message)
	if err != nil {
		return nil, err
	}
	line := fmt.Sprintf("%s::%d::%s%s", ev.Source, ev.Received.UnixMilli(), payload, amiproto.Terminator)
	return []byte(line), nil
}
