// Package events carries domain events out of the billing core. Delivery
// (push, email, sockets) is someone else's job; the core only publishes, so
// it has no compile-time dependency on any delivery mechanism.
package events

import (
	"context"
	"sync"
	"time"

	"consultly/models"

	"github.com/google/uuid"
)

// Publisher emits domain events for downstream subscribers.
type Publisher interface {
	Publish(ctx context.Context, name string, data map[string]interface{}) error
}

// NewEvent builds an event envelope.
func NewEvent(name string, data map[string]interface{}) models.Event {
	return models.Event{
		ID:        uuid.New().String(),
		Name:      name,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// MemoryPublisher records events in memory. Used in tests and as a safe
// default when Redis is unavailable.
type MemoryPublisher struct {
	mu     sync.Mutex
	Events []models.Event
}

func (p *MemoryPublisher) Publish(_ context.Context, name string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, NewEvent(name, data))
	return nil
}

// Named returns the recorded events with the given name.
func (p *MemoryPublisher) Named(name string) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Event
	for _, e := range p.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
