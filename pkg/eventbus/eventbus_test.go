package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reclaim-hq/reclaim/pkg/logging"
	"github.com/sirupsen/logrus"
)

type createdEvent struct {
	ID string
}

type otherEvent struct{}

func TestPublish_DeliversToMatchingSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))

	var got []string
	bus.Subscribe(func(ev createdEvent) {
		got = append(got, ev.ID)
	})
	bus.Subscribe(func(ev otherEvent) {
		t.Error("handler with non-matching signature must not be called")
	})

	bus.Publish(createdEvent{ID: "run-1"})
	bus.Publish(createdEvent{ID: "run-2"})

	require.Equal(t, []string{"run-1", "run-2"}, got)
}

func TestPublish_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))

	delivered := false
	bus.Subscribe(func(ev createdEvent) { panic("boom") })
	bus.Subscribe(func(ev createdEvent) { delivered = true })

	bus.Publish(createdEvent{ID: "run-1"})

	require.True(t, delivered, "second subscriber should still receive the event")
}

func TestUnsubscribe_RemovesHandler(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))

	calls := 0
	handler := func(ev createdEvent) { calls++ }
	bus.Subscribe(handler)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Publish(createdEvent{ID: "run-1"})
	bus.Unsubscribe(handler)
	require.Equal(t, 0, bus.SubscribersCount())

	bus.Publish(createdEvent{ID: "run-2"})
	require.Equal(t, 1, calls)
}
