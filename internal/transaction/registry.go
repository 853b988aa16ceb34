// Package transaction implements the transaction registry (component
// 4.D): active and historical transactions, a monotone ID counter drawn
// from the storage plug-in, and meter-sample accumulation. It never
// touches the charge-point registry; binding a connector to a transaction
// is the dispatcher's job.
package transaction

import (
	"context"
	"errors"
	"sync"

	"github.com/chargepoint/central-system/internal/authz"
	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/chargepoint/central-system/internal/storage"
)

// ErrNotFound is returned by Stop/AppendMeter for an unknown transaction ID.
var ErrNotFound = errors.New("transaction: not found")

// Status is the transaction's lifecycle state.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
)

// MeterSample is one entry appended via AppendMeter, preserved in arrival
// order.
type MeterSample struct {
	ConnectorID int
	Values      []ocpp.MeterValue
}

// Transaction is one charging session.
type Transaction struct {
	ID            int
	ChargePointID string
	ConnectorID   int
	IdTag         string
	MeterStart    int
	StartTime     string
	MeterStop     *int
	StopTime      *string
	StopReason    *ocpp.StopReason
	Status        Status
	Samples       []MeterSample

	mu sync.Mutex
}

func (t *Transaction) snapshotLocked() Transaction {
	cp := *t
	cp.Samples = append([]MeterSample(nil), t.Samples...)
	return cp
}

// EnergyUsed returns meterStop - meterStart, or 0 if not yet stopped.
func (t Transaction) EnergyUsed() int {
	if t.MeterStop == nil {
		return 0
	}
	return *t.MeterStop - t.MeterStart
}

// StartResult is what Start returns: either a real transaction ID plus the
// authorization verdict, or transactionId=-1 with no state change.
type StartResult struct {
	TransactionID int
	IdTagInfo     ocpp.IdTagInfo
}

// StopResult is what Stop returns.
type StopResult struct {
	ConnectorID     int
	EnergyUsed      int
	DurationSeconds int64
	IdTagInfo       *ocpp.IdTagInfo
}

// Registry is the process-wide transaction registry.
type Registry struct {
	mu                sync.RWMutex
	byID              map[int]*Transaction
	activeByConnector map[string]*Transaction // key: chargePointID + "\x00" + connectorID

	clk   clock.Clock
	authz *authz.Registry
	store storage.Store
}

// New builds an empty transaction registry backed by store for the durable
// transaction-ID counter and completed-transaction log. Pass
// storage.NewMemoryStore() when no durable backing is configured.
func New(clk clock.Clock, authzRegistry *authz.Registry, store storage.Store) *Registry {
	return &Registry{
		byID:              make(map[int]*Transaction),
		activeByConnector: make(map[string]*Transaction),
		clk:               clk,
		authz:             authzRegistry,
		store:             store,
	}
}

// LoadHistory seeds the registry's completed-transaction view from the
// storage plug-in's log, so the HTTP projection still reflects history
// after a restart even though active/in-progress state cannot be recovered.
func (r *Registry) LoadHistory(limit int) error {
	recs, err := r.store.RecentCompletedTransactions(context.Background(), limit)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		meterStop := rec.MeterStop
		stopTime := rec.StopTime
		r.byID[rec.ID] = &Transaction{
			ID:            rec.ID,
			ChargePointID: rec.ChargePointID,
			ConnectorID:   rec.ConnectorID,
			IdTag:         rec.IdTag,
			MeterStart:    rec.MeterStart,
			StartTime:     rec.StartTime,
			MeterStop:     &meterStop,
			StopTime:      &stopTime,
			Status:        StatusCompleted,
		}
	}
	return nil
}

func connectorKey(stationID string, connectorID int) string {
	return stationID + "\x00" + itoa(connectorID)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Start validates idTag via the authorization registry first; a non-Accepted
// verdict returns transactionId=-1 with no state change. Otherwise it
// allocates the next monotone ID, creates the Transaction, and returns it.
func (r *Registry) Start(stationID string, connectorID int, idTag string, meterStart int, timestamp string) (StartResult, error) {
	verdict := r.authz.StartSession(stationID, idTag)
	info := ocpp.IdTagInfo{Status: verdict.Status, ParentIdTag: verdict.ParentIdTag}
	if verdict.ExpiryDate != nil {
		iso := clock.FormatISO(*verdict.ExpiryDate)
		info.ExpiryDate = &iso
	}

	if verdict.Status != ocpp.AuthAccepted {
		return StartResult{TransactionID: -1, IdTagInfo: info}, nil
	}

	id, err := r.store.NextTransactionID(context.Background())
	if err != nil {
		return StartResult{}, err
	}

	if timestamp == "" {
		timestamp = r.clk.NowISO()
	}

	txn := &Transaction{
		ID:            id,
		ChargePointID: stationID,
		ConnectorID:   connectorID,
		IdTag:         idTag,
		MeterStart:    meterStart,
		StartTime:     timestamp,
		Status:        StatusInProgress,
	}

	r.mu.Lock()
	r.byID[id] = txn
	r.activeByConnector[connectorKey(stationID, connectorID)] = txn
	r.mu.Unlock()

	return StartResult{TransactionID: id, IdTagInfo: info}, nil
}

// Stop closes a transaction. If idTag differs from the starting tag it is
// independently validated; a non-Accepted stopping tag does not prevent the
// stop, but is reflected in the returned IdTagInfo.
func (r *Registry) Stop(transactionID int, meterStop int, timestamp string, idTag *string, reason *ocpp.StopReason, data []MeterSample) (StopResult, error) {
	r.mu.RLock()
	txn, ok := r.byID[transactionID]
	r.mu.RUnlock()
	if !ok {
		return StopResult{}, ErrNotFound
	}

	if timestamp == "" {
		timestamp = r.clk.NowISO()
	}

	var outInfo *ocpp.IdTagInfo
	if idTag != nil && *idTag != txn.IdTag {
		v := r.authz.Validate(*idTag)
		outInfo = &ocpp.IdTagInfo{Status: v.Status, ParentIdTag: v.ParentIdTag}
	}

	txn.mu.Lock()
	txn.MeterStop = &meterStop
	txn.StopTime = &timestamp
	txn.StopReason = reason
	txn.Status = StatusCompleted
	txn.Samples = append(txn.Samples, data...)
	energy := txn.EnergyUsed()
	startTS := txn.StartTime
	connectorID := txn.ConnectorID
	stationID := txn.ChargePointID
	startIdTag := txn.IdTag
	meterStart := txn.MeterStart
	txn.mu.Unlock()

	r.mu.Lock()
	delete(r.activeByConnector, connectorKey(stationID, connectorID))
	r.mu.Unlock()

	r.authz.EndSession(stationID, startIdTag)

	duration := durationSeconds(startTS, timestamp)

	// Best-effort: the transaction is already closed in memory, and a
	// persistence failure here is ignored, so it never turns into a
	// protocol-level error back to the station.
	_ = r.store.AppendCompletedTransaction(context.Background(), storage.TransactionRecord{
		ID:            transactionID,
		ChargePointID: stationID,
		ConnectorID:   connectorID,
		IdTag:         startIdTag,
		MeterStart:    meterStart,
		MeterStop:     meterStop,
		StartTime:     startTS,
		StopTime:      timestamp,
		EnergyUsed:    energy,
	})

	return StopResult{ConnectorID: connectorID, EnergyUsed: energy, DurationSeconds: duration, IdTagInfo: outInfo}, nil
}

func durationSeconds(startISO, stopISO string) int64 {
	start, err1 := clock.ParseISO(startISO)
	stop, err2 := clock.ParseISO(stopISO)
	if err1 != nil || err2 != nil {
		return 0
	}
	d := stop.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// AppendMeter appends samples to an in-progress transaction in arrival
// order. Returns false if the transaction is unknown.
func (r *Registry) AppendMeter(transactionID int, connectorID int, values []ocpp.MeterValue) bool {
	r.mu.RLock()
	txn, ok := r.byID[transactionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	txn.mu.Lock()
	txn.Samples = append(txn.Samples, MeterSample{ConnectorID: connectorID, Values: values})
	txn.mu.Unlock()
	return true
}

// GetActiveByConnector returns the single in-progress transaction for
// (stationID, connectorID), or ok=false if none.
func (r *Registry) GetActiveByConnector(stationID string, connectorID int) (Transaction, bool) {
	r.mu.RLock()
	txn, ok := r.activeByConnector[connectorKey(stationID, connectorID)]
	r.mu.RUnlock()
	if !ok {
		return Transaction{}, false
	}
	txn.mu.Lock()
	defer txn.mu.Unlock()
	return txn.snapshotLocked(), true
}

// Get returns the transaction by ID, or ok=false if unknown.
func (r *Registry) Get(id int) (Transaction, bool) {
	r.mu.RLock()
	txn, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return Transaction{}, false
	}
	txn.mu.Lock()
	defer txn.mu.Unlock()
	return txn.snapshotLocked(), true
}

// List returns every known transaction.
func (r *Registry) List() []Transaction {
	r.mu.RLock()
	all := make([]*Transaction, 0, len(r.byID))
	for _, t := range r.byID {
		all = append(all, t)
	}
	r.mu.RUnlock()

	out := make([]Transaction, 0, len(all))
	for _, t := range all {
		t.mu.Lock()
		out = append(out, t.snapshotLocked())
		t.mu.Unlock()
	}
	return out
}

// ByStation returns every transaction (active and historical) for stationID.
func (r *Registry) ByStation(stationID string) []Transaction {
	all := r.List()
	out := make([]Transaction, 0)
	for _, t := range all {
		if t.ChargePointID == stationID {
			out = append(out, t)
		}
	}
	return out
}
