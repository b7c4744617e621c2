// Package events provides the difficulty change notification bus. The bus is
// an explicit, constructed object handed to consumers rather than a package
// singleton, so wiring stays visible at the composition root.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck/internal/difficulty"
)

// Type names the kind of event carried on the bus.
type Type string

const (
	TypeDifficultyChanged      Type = "difficulty_changed"
	TypePracticeCreated        Type = "practice_session_created"
	TypePracticeCreatedWarning Type = "practice_session_created_warning"
)

// Event is a difficulty lifecycle notification.
type Event struct {
	ID            uuid.UUID        `json:"id"`
	Type          Type             `json:"type"`
	SessionID     string           `json:"session_id"`
	NewDifficulty difficulty.Level `json:"new_difficulty"`
	Reason        string           `json:"reason"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewEvent builds an event stamped with a fresh id and the current time.
func NewEvent(t Type, sessionID string, level difficulty.Level, reason string) Event {
	return Event{
		ID:            uuid.New(),
		Type:          t,
		SessionID:     sessionID,
		NewDifficulty: level,
		Reason:        reason,
		Timestamp:     time.Now(),
	}
}

// Handler processes a published event.
type Handler func(Event)

type subscriber struct {
	handler Handler
	removed bool
}

// Bus delivers events synchronously to subscribers in subscription order.
// A panicking subscriber is isolated: the panic is recovered and logged, and
// delivery continues to the remaining subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscriber
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Calling the returned function twice is a no-op.
func (b *Bus) Subscribe(h Handler) func() {
	if h == nil {
		panic("events: nil handler")
	}

	sub := &subscriber{handler: h}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.removed {
			return
		}
		sub.removed = true
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to every current subscriber, in order.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"event_id", ev.ID,
				"event_type", ev.Type,
				"session_id", ev.SessionID,
				"panic", r,
			)
		}
	}()
	sub.handler(ev)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
