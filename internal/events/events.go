// Package events carries marketplace events out of the lifecycle. Publishing
// is fire-and-forget: lifecycle operations log a failed publish and still
// succeed.
package events

import (
	"context"
	"sync"

	"datanest-backend/internal/model"
)

// Topic is the Kafka topic every MarketEvent is written to.
const Topic = "market.events"

type Publisher interface {
	Publish(ctx context.Context, evt model.MarketEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, model.MarketEvent) error { return nil }
func (Nop) Close() error                                     { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.MarketEvent
}

func (r *Recorder) Publish(_ context.Context, evt model.MarketEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []model.MarketEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.MarketEvent(nil), r.events...)
}

// OfType filters Events by type.
func (r *Recorder) OfType(t model.EventType) []model.MarketEvent {
	var out []model.MarketEvent
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
