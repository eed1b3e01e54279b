package event

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nodesale/internal/storage"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewBus(nil, nil)
	defer bus.Stop()

	_, first := bus.Subscribe(OrderCreatedEventType)
	_, second := bus.Subscribe(OrderCreatedEventType)
	_, other := bus.Subscribe(AirdroppedEventType)

	bus.Publish(NewEvent(OrderCreatedEventType, "genesis", PurchaseEvent{OrderID: 1}))

	for _, ch := range []<-chan Event{first, second} {
		select {
		case evt := <-ch:
			data, ok := evt.Data.(PurchaseEvent)
			require.True(t, ok)
			assert.Equal(t, uint64(1), data.OrderID)
			assert.Equal(t, "genesis", evt.Phase)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
	select {
	case evt := <-other:
		t.Fatalf("unexpected event %s", evt)
	default:
	}
}

func TestBusAsyncAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	bus := NewBus(reg, nil)

	received := make(chan Event, 1)
	bus.SubscribeFunc(BoughtEventType, func(evt Event) {
		received <- evt
	})
	require.True(t, bus.PublishAsync(NewEvent(BoughtEventType, "genesis", nil)))

	select {
	case evt := <-received:
		assert.Equal(t, BoughtEventType, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}

	bus.Stop()
	bus.Stop()
	assert.False(t, bus.PublishAsync(NewEvent(BoughtEventType, "genesis", nil)))
	assert.Equal(t, float64(1), testutil.ToFloat64(bus.metrics.published.WithLabelValues(string(BoughtEventType))))
}

func TestHandlerPanicDoesNotStopSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewBus(nil, nil)
	defer bus.Stop()

	calls := make(chan struct{}, 2)
	bus.SubscribeFunc(OrderFilledEventType, func(Event) {
		calls <- struct{}{}
		panic("handler failure")
	})
	bus.Publish(NewEvent(OrderFilledEventType, "genesis", nil))
	bus.Publish(NewEvent(OrderFilledEventType, "genesis", nil))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Stop()

	id, ch := bus.Subscribe(TierCreatedEventType)
	bus.Unsubscribe(TierCreatedEventType, id)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRecordRoundTrip(t *testing.T) {
	store, err := storage.NewSqliteStorage(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	defer store.Close()

	evt := NewEvent(OrderFilledEventType, "genesis", OrderFilledEvent{Phase: "genesis", OrderID: 2, ItemID: 5})
	ctx := context.Background()
	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		return Record(repo, evt)
	}))

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		records, err := repo.Events("genesis", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)

		logged := FromRecord(records[0])
		assert.Equal(t, evt.ID, logged.ID)
		assert.Equal(t, OrderFilledEventType, logged.Type)

		var data OrderFilledEvent
		require.NoError(t, json.Unmarshal(logged.Data.(json.RawMessage), &data))
		assert.Equal(t, uint64(5), data.ItemID)
		return nil
	}))
}
