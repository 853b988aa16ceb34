// Package chargepoint implements the charge-point registry (component
// 4.C): live per-station and per-connector state, serialized per station,
// emitting one delta event per mutation.
package chargepoint

import (
	"sync"

	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/events"
	"github.com/chargepoint/central-system/internal/ocpp"
)

// MeterSnapshot is the primary energy reading a connector carries.
type MeterSnapshot struct {
	Value     float64
	Unit      ocpp.UnitOfMeasure
	Timestamp string
}

// ConnectorState is one connector's live state. Connector 0 is the
// pseudo-connector representing the whole station: a StatusNotification for
// it updates the station-wide fields only, while UpdateMeter,
// SetConnectorStatus and SetConnectorTxnBinding for connector 0 do store an
// entry under key 0 in the Connectors map.
type ConnectorState struct {
	ConnectorID     int
	Status          ocpp.ChargePointStatus
	ErrorCode       ocpp.ChargePointErrorCode
	Info            string
	Meter           MeterSnapshot
	OtherReadings   map[ocpp.Measurand]SampledReading
	StatusUpdatedAt string
	TransactionID   *int // nil when no in-flight transaction is bound
}

// SampledReading is a non-primary measurand kept alongside the meter
// snapshot (power, voltage, current, ...).
type SampledReading struct {
	Value     string
	Unit      ocpp.UnitOfMeasure
	Timestamp string
}

// ChargePoint is one station's live state. Created on first BootNotification
// and never removed for the process lifetime.
type ChargePoint struct {
	ID            string
	Vendor        string
	Model         string
	Firmware      string
	SerialNumber  string
	Registered    bool
	RegisteredAt  string
	LastHeartbeat string
	Status        ocpp.ChargePointStatus
	ErrorCode     ocpp.ChargePointErrorCode
	Info          string
	Connectors    map[int]*ConnectorState

	mu sync.Mutex // serializes all mutations to this station
}

// Snapshot is an immutable copy of a ChargePoint safe to read without
// holding the station's lock — what Get/List hand back.
type Snapshot struct {
	ID            string
	Vendor        string
	Model         string
	Firmware      string
	SerialNumber  string
	Registered    bool
	RegisteredAt  string
	LastHeartbeat string
	Status        ocpp.ChargePointStatus
	ErrorCode     ocpp.ChargePointErrorCode
	Info          string
	Connectors    map[int]ConnectorState
}

func (cp *ChargePoint) snapshotLocked() Snapshot {
	connectors := make(map[int]ConnectorState, len(cp.Connectors))
	for id, c := range cp.Connectors {
		connectors[id] = *c
	}
	return Snapshot{
		ID: cp.ID, Vendor: cp.Vendor, Model: cp.Model, Firmware: cp.Firmware,
		SerialNumber: cp.SerialNumber, Registered: cp.Registered,
		RegisteredAt: cp.RegisteredAt, LastHeartbeat: cp.LastHeartbeat,
		Status: cp.Status, ErrorCode: cp.ErrorCode, Info: cp.Info,
		Connectors: connectors,
	}
}

// Registry is the process-wide charge-point registry.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*ChargePoint
	clk   clock.Clock
	bus   events.Publisher
}

// New builds an empty registry.
func New(clk clock.Clock, bus events.Publisher) *Registry {
	if bus == nil {
		bus = events.NopPublisher{}
	}
	return &Registry{byID: make(map[string]*ChargePoint), clk: clk, bus: bus}
}

// stationFor returns the ChargePoint for id, creating it if absent. Caller
// must not hold r.mu when calling this if it intends to lock cp.mu after
// (stationFor only briefly takes r.mu).
func (r *Registry) stationFor(id string) *ChargePoint {
	r.mu.RLock()
	cp, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return cp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cp, ok = r.byID[id]; ok {
		return cp
	}
	cp = &ChargePoint{ID: id, Connectors: make(map[int]*ConnectorState)}
	r.byID[id] = cp
	return cp
}

func (r *Registry) publish(topic events.Topic, chargePointID string, data interface{}) {
	r.bus.Publish(events.Event{
		Topic:         topic,
		ChargePointID: chargePointID,
		Timestamp:     r.clk.NowISO(),
		Data:          data,
	})
}

// HandleBootNotification upserts vendor/model/firmware/serial and marks the
// station registered.
func (r *Registry) HandleBootNotification(stationID string, req ocpp.BootNotificationRequest) Snapshot {
	cp := r.stationFor(stationID)
	cp.mu.Lock()
	cp.Vendor = req.ChargePointVendor
	cp.Model = req.ChargePointModel
	if req.ChargePointSerialNumber != nil {
		cp.SerialNumber = *req.ChargePointSerialNumber
	}
	if req.FirmwareVersion != nil {
		cp.Firmware = *req.FirmwareVersion
	}
	cp.Registered = true
	cp.RegisteredAt = r.clk.NowISO()
	snap := cp.snapshotLocked()
	cp.mu.Unlock()

	r.publish(events.TopicStationUpdate, stationID, snap)
	return snap
}

// HandleHeartbeat stamps lastHeartbeat.
func (r *Registry) HandleHeartbeat(stationID string) {
	cp := r.stationFor(stationID)
	cp.mu.Lock()
	cp.LastHeartbeat = r.clk.NowISO()
	snap := cp.snapshotLocked()
	cp.mu.Unlock()

	r.publish(events.TopicStationUpdate, stationID, snap)
}

// StatusUpdate is the normalized input to HandleStatusNotification.
type StatusUpdate struct {
	ConnectorID int
	Status      ocpp.ChargePointStatus
	ErrorCode   ocpp.ChargePointErrorCode
	Info        string
	Timestamp   string // ISO; empty means "use current time"
}

// HandleStatusNotification dispatches by connector. connectorId=0 updates
// only the station-wide fields; connectorId>=1 updates only that
// connector's mapping, per the invariant in section 3.
func (r *Registry) HandleStatusNotification(stationID string, upd StatusUpdate) Snapshot {
	cp := r.stationFor(stationID)
	ts := upd.Timestamp
	if ts == "" {
		ts = r.clk.NowISO()
	}

	cp.mu.Lock()
	if upd.ConnectorID == 0 {
		cp.Status = upd.Status
		cp.ErrorCode = upd.ErrorCode
		cp.Info = upd.Info
		snap := cp.snapshotLocked()
		cp.mu.Unlock()
		r.publish(events.TopicStationUpdate, stationID, snap)
		return snap
	}

	conn, ok := cp.Connectors[upd.ConnectorID]
	if !ok {
		conn = &ConnectorState{ConnectorID: upd.ConnectorID, OtherReadings: make(map[ocpp.Measurand]SampledReading)}
		cp.Connectors[upd.ConnectorID] = conn
	}
	conn.Status = upd.Status
	conn.ErrorCode = upd.ErrorCode
	conn.Info = upd.Info
	conn.StatusUpdatedAt = ts
	connCopy := *conn
	snap := cp.snapshotLocked()
	cp.mu.Unlock()

	r.publish(events.TopicConnectorUpdate, stationID, connCopy)
	return snap
}

// MeterUpdate is the normalized input to UpdateMeter.
type MeterUpdate struct {
	ConnectorID int
	Primary     *MeterSnapshot // nil if this batch carried no register/interval energy reading
	Additional  map[ocpp.Measurand]SampledReading
}

// UpdateMeter replaces the connector's primary meter snapshot if the new
// sample is not older than the stored one, and merges additional
// measurands regardless.
func (r *Registry) UpdateMeter(stationID string, upd MeterUpdate) {
	cp := r.stationFor(stationID)

	cp.mu.Lock()
	conn, ok := cp.Connectors[upd.ConnectorID]
	if !ok {
		conn = &ConnectorState{ConnectorID: upd.ConnectorID, OtherReadings: make(map[ocpp.Measurand]SampledReading)}
		cp.Connectors[upd.ConnectorID] = conn
	}
	if conn.OtherReadings == nil {
		conn.OtherReadings = make(map[ocpp.Measurand]SampledReading)
	}

	if upd.Primary != nil && (conn.Meter.Timestamp == "" || upd.Primary.Timestamp >= conn.Meter.Timestamp) {
		conn.Meter = *upd.Primary
	}
	for m, reading := range upd.Additional {
		conn.OtherReadings[m] = reading
	}
	connCopy := *conn
	cp.mu.Unlock()

	r.publish(events.TopicConnectorUpdate, stationID, connCopy)
}

// SetStatus sets the station-wide status directly (used by the dispatcher
// after a successful StartTransaction, which moves the station to Charging
// without a StatusNotification round trip).
func (r *Registry) SetStatus(stationID string, status ocpp.ChargePointStatus) {
	cp := r.stationFor(stationID)
	cp.mu.Lock()
	cp.Status = status
	snap := cp.snapshotLocked()
	cp.mu.Unlock()
	r.publish(events.TopicStationUpdate, stationID, snap)
}

// SetConnectorStatus sets one connector's status directly (used by the
// dispatcher when ending a transaction moves a connector back toward
// Available without a fresh StatusNotification).
func (r *Registry) SetConnectorStatus(stationID string, connectorID int, status ocpp.ChargePointStatus) {
	cp := r.stationFor(stationID)
	cp.mu.Lock()
	conn, ok := cp.Connectors[connectorID]
	if !ok {
		conn = &ConnectorState{ConnectorID: connectorID, OtherReadings: make(map[ocpp.Measurand]SampledReading)}
		cp.Connectors[connectorID] = conn
	}
	conn.Status = status
	connCopy := *conn
	cp.mu.Unlock()
	r.publish(events.TopicConnectorUpdate, stationID, connCopy)
}

// SetConnectorTxnBinding binds (or clears, with txnID nil) the in-flight
// transaction for a connector. This is the only mutation that emits
// payment_update rather than connector_update, since it is triggered
// externally (by the transaction registry's decision, relayed by the
// dispatcher) rather than by a StatusNotification.
func (r *Registry) SetConnectorTxnBinding(stationID string, connectorID int, txnID *int) {
	cp := r.stationFor(stationID)
	cp.mu.Lock()
	conn, ok := cp.Connectors[connectorID]
	if !ok {
		conn = &ConnectorState{ConnectorID: connectorID, OtherReadings: make(map[ocpp.Measurand]SampledReading)}
		cp.Connectors[connectorID] = conn
	}
	conn.TransactionID = txnID
	connCopy := *conn
	cp.mu.Unlock()
	r.publish(events.TopicPaymentUpdate, stationID, connCopy)
}

// Get returns a stable snapshot of one station, or ok=false if unknown.
func (r *Registry) Get(stationID string) (Snapshot, bool) {
	r.mu.RLock()
	cp, ok := r.byID[stationID]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.snapshotLocked(), true
}

// List returns a stable snapshot of every known station.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	stations := make([]*ChargePoint, 0, len(r.byID))
	for _, cp := range r.byID {
		stations = append(stations, cp)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(stations))
	for _, cp := range stations {
		cp.mu.Lock()
		out = append(out, cp.snapshotLocked())
		cp.mu.Unlock()
	}
	return out
}

// IsRegistered reports whether the station has completed a BootNotification.
func (r *Registry) IsRegistered(stationID string) bool {
	snap, ok := r.Get(stationID)
	return ok && snap.Registered
}
