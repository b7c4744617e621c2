package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepdeck/prepdeck/internal/events"
)

// publishTimeout bounds how long a bus callback may block on the broker.
const publishTimeout = 2 * time.Second

// Publisher is the subset of Connection the bridge needs.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Bridge forwards bus events to RabbitMQ. Publish failures are logged and
// dropped; the queue is a side channel and must never block or fail the
// in-process notification path.
type Bridge struct {
	pub         Publisher
	logger      *slog.Logger
	unsubscribe func()
}

// NewBridge subscribes to the bus and starts forwarding events.
func NewBridge(bus *events.Bus, pub Publisher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		pub:    pub,
		logger: logger,
	}
	b.unsubscribe = bus.Subscribe(b.forward)
	return b
}

func (b *Bridge) forward(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	queue := queueFor(ev.Type)
	if err := b.pub.PublishJSON(ctx, queue, ev); err != nil {
		b.logger.Error("failed to publish event to queue",
			"queue", queue,
			"event_id", ev.ID,
			"event_type", ev.Type,
			"session_id", ev.SessionID,
			"error", err,
		)
	}
}

func queueFor(t events.Type) string {
	switch t {
	case events.TypePracticeCreated, events.TypePracticeCreatedWarning:
		return PracticeQueueName
	default:
		return ChangeQueueName
	}
}

// Close detaches the bridge from the bus.
func (b *Bridge) Close() {
	b.unsubscribe()
}
