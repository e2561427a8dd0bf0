// Package fanout pushes realtime events to the subscribers of a tenant. Delivery is
// at-most-once: nothing is retried or persisted.
package fanout

import (
	"context"
	"sync"

	"possync/backend/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Subscriber streams a tenant's events until the returned cancel func is called or ctx
// ends.
type Subscriber interface {
	Subscribe(ctx context.Context, tenantID string) (<-chan domain.Event, func(), error)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ domain.Event) error {
	return nil
}

// Channel is the pub/sub channel name of a tenant.
func Channel(tenantID string) string {
	return "possync:tenant:" + tenantID + ":events"
}

// LocalBroker fans out in-process. It backs single-instance deployments and tests.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan domain.Event]struct{}
	buffer int
}

func NewLocalBroker(buffer int) *LocalBroker {
	if buffer < 1 {
		buffer = 16
	}
	return &LocalBroker{
		subs:   make(map[string]map[chan domain.Event]struct{}),
		buffer: buffer,
	}
}

// Publish drops the event for any subscriber whose buffer is full.
func (b *LocalBroker) Publish(_ context.Context, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[event.TenantID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, tenantID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = make(map[chan domain.Event]struct{})
	}
	b.subs[tenantID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[tenantID], ch)
			if len(b.subs[tenantID]) == 0 {
				delete(b.subs, tenantID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Recorder keeps every published event. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfType(eventType string) []domain.Event {
	out := make([]domain.Event, 0)
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
