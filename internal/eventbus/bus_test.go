package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chargepoint/central-system/internal/eventbus"
	"github.com/chargepoint/central-system/internal/events"
)

func TestSubscriberOnlyReceivesSubscribedStation(t *testing.T) {
	bus := eventbus.New(nil)
	sub := bus.Join("client-1")
	defer bus.Leave("client-1")

	sub.Subscribe("CP001")

	bus.Publish(events.Event{Topic: events.TopicStationUpdate, ChargePointID: "CP002", Timestamp: "t1"})
	bus.Publish(events.Event{Topic: events.TopicStationUpdate, ChargePointID: "CP001", Timestamp: "t2"})

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "CP001", evt.ChargePointID)
	default:
		t.Fatal("expected one event in the subscriber's queue")
	}

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected second event: %+v", evt)
	default:
	}
}

func TestDefaultSubscriptionSetIsEmpty(t *testing.T) {
	bus := eventbus.New(nil)
	sub := bus.Join("client-2")
	defer bus.Leave("client-2")

	bus.Publish(events.Event{Topic: events.TopicStationUpdate, ChargePointID: "CP001", Timestamp: "t1"})

	select {
	case evt := <-sub.Events():
		t.Fatalf("unsubscribed client should not receive anything, got %+v", evt)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := eventbus.New(nil)
	sub := bus.Join("client-3")
	defer bus.Leave("client-3")

	sub.Subscribe("CP001")
	sub.Unsubscribe("CP001")

	bus.Publish(events.Event{Topic: events.TopicStationUpdate, ChargePointID: "CP001", Timestamp: "t1"})

	select {
	case evt := <-sub.Events():
		t.Fatalf("unsubscribed client should not receive anything, got %+v", evt)
	default:
	}
}

func TestSlowSubscriberDropsNewestRatherThanBlocking(t *testing.T) {
	bus := eventbus.New(nil)
	sub := bus.Join("client-4")
	defer bus.Leave("client-4")
	sub.Subscribe("CP001")

	for i := 0; i < eventbus.SubscriberQueueSize+10; i++ {
		bus.Publish(events.Event{Topic: events.TopicStationUpdate, ChargePointID: "CP001", Timestamp: "t"})
	}

	assert.Len(t, sub.Events(), eventbus.SubscriberQueueSize)
}

func TestMirrorCalledForEveryEventRegardlessOfSubscribers(t *testing.T) {
	var mirrored []events.Event
	bus := eventbus.New(func(e events.Event) { mirrored = append(mirrored, e) })

	bus.Publish(events.Event{Topic: events.TopicPaymentUpdate, ChargePointID: "CP001", Timestamp: "t1"})
	bus.Publish(events.Event{Topic: events.TopicPaymentUpdate, ChargePointID: "CP002", Timestamp: "t2"})

	require.Len(t, mirrored, 2)
	assert.Equal(t, "CP001", mirrored[0].ChargePointID)
}

func TestLeaveRemovesSubscriber(t *testing.T) {
	bus := eventbus.New(nil)
	bus.Join("client-5")
	assert.Equal(t, 1, bus.SubscriberCount())
	bus.Leave("client-5")
	assert.Equal(t, 0, bus.SubscriberCount())
}
