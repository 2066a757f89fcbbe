package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/browserflow/pkg/channels/gochannel"
	"github.com/dukex/browserflow/pkg/eventbus"
	"github.com/dukex/browserflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.TaskCompleted, 1)

	require.NoError(t, bus.Handle(events.TaskCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.TaskCompleted)
		if ok {
			received <- completed
		}

		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// An event type nobody handles is acked and skipped.
	require.NoError(t, bus.Publish(ctx, "task-1", events.TaskStarted{
		BaseEvent: events.NewBase(bus.GenerateID(), events.TaskStartedEvent, "task-1", "wf-1", time.Now()),
	}))

	require.NoError(t, bus.Publish(ctx, "task-1", events.TaskCompleted{
		BaseEvent:  events.NewBase(bus.GenerateID(), events.TaskCompletedEvent, "task-1", "wf-1", time.Now()),
		Dispatches: 4,
	}))

	select {
	case event := <-received:
		assert.Equal(t, "task-1", event.TaskID)
		assert.Equal(t, 4, event.Dispatches)
		assert.Equal(t, events.TaskCompletedEvent, event.Type)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
