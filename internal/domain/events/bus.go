// Package events fans lifecycle events out to in-process subscribers.
//
// Publishing never blocks: a subscriber whose buffer is full misses the
// event and its drop counter is incremented.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/id"
)

// Type identifies a lifecycle event
type Type string

const (
	TypeInstalling      Type = "installing"
	TypeInstalled       Type = "installed"
	TypeUpdating        Type = "updating"
	TypeUpdated         Type = "updated"
	TypeUninstalled     Type = "uninstalled"
	TypeStatusChanged   Type = "status_changed"
	TypeUpdateAvailable Type = "update_available"
	TypeFailed          Type = "failed"
	TypePhase           Type = "phase"
)

// Event is one lifecycle notification
type Event struct {
	ID           id.EventID        `json:"id"`
	Type         Type              `json:"type"`
	AppID        string            `json:"app_id"`
	TransitionID id.TransitionID   `json:"transition_id,omitempty"`
	Phase        string            `json:"phase,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Time         time.Time         `json:"time"`
}

// Subscription receives events until cancelled
type Subscription struct {
	C       <-chan Event
	ch      chan Event
	bus     *Bus
	dropped atomic.Uint64
	once    sync.Once
}

// Dropped returns the number of events this subscriber missed
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Cancel detaches the subscription and closes its channel
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Bus is an in-process publish/subscribe hub
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with the given buffer size
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish stamps and delivers an event to every subscriber
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = id.NewEventID()
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Close detaches all subscribers
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}
