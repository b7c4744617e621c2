//go:build integration

package queue_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/prepdeck/prepdeck/internal/difficulty"
	"github.com/prepdeck/prepdeck/internal/events"
	"github.com/prepdeck/prepdeck/internal/queue"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return amqpURL, cleanup
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672", nil)
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Connection_PublishJSON(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	ev := events.NewEvent(events.TypeDifficultyChanged, "sess-1", difficulty.Hard, "user_request")

	if err := conn.PublishJSON(ctx, queue.ChangeQueueName, ev); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	// Verify
	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.ChangeQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}

	if q.Messages != 1 {
		t.Errorf("expected 1 message, got %d", q.Messages)
	}
}

func TestIntegration_Bridge_RoutesByEventType(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	bus := events.NewBus(slog.Default())
	bridge := queue.NewBridge(bus, conn, slog.Default())
	defer bridge.Close()

	bus.Publish(events.NewEvent(events.TypeDifficultyChanged, "sess-1", difficulty.Expert, "performance"))
	bus.Publish(events.NewEvent(events.TypePracticeCreated, "sess-2", difficulty.Medium, ""))

	// The bridge publishes synchronously, but give the broker a moment to
	// settle counters before inspecting.
	time.Sleep(100 * time.Millisecond)

	ch := conn.Channel()
	changes, err := ch.QueueInspect(queue.ChangeQueueName)
	if err != nil {
		t.Fatalf("failed to inspect change queue: %v", err)
	}
	if changes.Messages != 1 {
		t.Errorf("expected 1 change message, got %d", changes.Messages)
	}

	practice, err := ch.QueueInspect(queue.PracticeQueueName)
	if err != nil {
		t.Fatalf("failed to inspect practice queue: %v", err)
	}
	if practice.Messages != 1 {
		t.Errorf("expected 1 practice message, got %d", practice.Messages)
	}
}
