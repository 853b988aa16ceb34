package chargepoint

import (
	"sync"
	"testing"

	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/events"
	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestHandleBootNotificationCreatesAndRegistersStation(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(clock.New(), pub)

	snap := r.HandleBootNotification("CP001", ocpp.BootNotificationRequest{
		ChargePointVendor: "Acme", ChargePointModel: "X1",
	})

	assert.True(t, snap.Registered)
	assert.Equal(t, "Acme", snap.Vendor)
	assert.NotEmpty(t, snap.RegisteredAt)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, events.TopicStationUpdate, pub.last().Topic)
}

func TestHandleHeartbeatAdvancesLastHeartbeat(t *testing.T) {
	r := New(clock.New(), nil)
	r.HandleBootNotification("CP001", ocpp.BootNotificationRequest{ChargePointVendor: "A", ChargePointModel: "B"})
	r.HandleHeartbeat("CP001")

	snap, ok := r.Get("CP001")
	require.True(t, ok)
	assert.NotEmpty(t, snap.LastHeartbeat)
}

func TestStatusNotificationConnectorZeroOnlyTouchesStation(t *testing.T) {
	r := New(clock.New(), nil)
	r.HandleStatusNotification("CP001", StatusUpdate{ConnectorID: 0, Status: ocpp.StatusFaulted, ErrorCode: ocpp.ErrorNoError})

	snap, ok := r.Get("CP001")
	require.True(t, ok)
	assert.Equal(t, ocpp.StatusFaulted, snap.Status)
	assert.Empty(t, snap.Connectors)
}

func TestStatusNotificationConnectorOneDoesNotTouchStationStatus(t *testing.T) {
	r := New(clock.New(), nil)
	r.HandleStatusNotification("CP001", StatusUpdate{ConnectorID: 1, Status: ocpp.StatusAvailable, ErrorCode: ocpp.ErrorNoError})

	snap, ok := r.Get("CP001")
	require.True(t, ok)
	assert.Equal(t, ocpp.ChargePointStatus(""), snap.Status)
	require.Contains(t, snap.Connectors, 1)
	assert.Equal(t, ocpp.StatusAvailable, snap.Connectors[1].Status)
}

func TestUpdateMeterReplacesOnlyWhenNewer(t *testing.T) {
	r := New(clock.New(), nil)
	r.UpdateMeter("CP001", MeterUpdate{
		ConnectorID: 1,
		Primary:     &MeterSnapshot{Value: 1000, Unit: ocpp.UnitWh, Timestamp: "2026-07-31T10:00:00.000Z"},
	})
	r.UpdateMeter("CP001", MeterUpdate{
		ConnectorID: 1,
		Primary:     &MeterSnapshot{Value: 500, Unit: ocpp.UnitWh, Timestamp: "2026-07-31T09:00:00.000Z"},
	})

	snap, _ := r.Get("CP001")
	assert.Equal(t, float64(1000), snap.Connectors[1].Meter.Value)
}

func TestSetConnectorTxnBindingEmitsPaymentUpdate(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(clock.New(), pub)
	txnID := 7
	r.SetConnectorTxnBinding("CP001", 1, &txnID)

	assert.Equal(t, events.TopicPaymentUpdate, pub.last().Topic)
}

func TestListReturnsStableSnapshots(t *testing.T) {
	r := New(clock.New(), nil)
	r.HandleBootNotification("CP001", ocpp.BootNotificationRequest{ChargePointVendor: "A", ChargePointModel: "B"})
	r.HandleBootNotification("CP002", ocpp.BootNotificationRequest{ChargePointVendor: "A", ChargePointModel: "B"})

	all := r.List()
	assert.Len(t, all, 2)
}

func TestGetUnknownStation(t *testing.T) {
	r := New(clock.New(), nil)
	_, ok := r.Get("nope")
	assert.False(t, ok)
}
