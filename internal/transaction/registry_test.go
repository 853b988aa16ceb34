package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/chargepoint/central-system/internal/authz"
	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/chargepoint/central-system/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsInvalidTagWithoutAllocatingID(t *testing.T) {
	az := authz.New(clock.New(), false)
	r := New(clock.New(), az, storage.NewMemoryStore())

	res, err := r.Start("CP1", 1, "nosuchtag", 0, "")
	require.NoError(t, err)
	assert.Equal(t, -1, res.TransactionID)
	assert.Equal(t, ocpp.AuthInvalid, res.IdTagInfo.Status)
	assert.Empty(t, r.List())
}

func TestStartAcceptedAllocatesMonotoneID(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	az.Register("tag2", ocpp.AuthAccepted, nil, nil)
	r := New(clock.New(), az, storage.NewMemoryStore())

	res1, err := r.Start("CP1", 1, "tag1", 0, "2026-07-31T10:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, 1, res1.TransactionID)
	assert.Equal(t, ocpp.AuthAccepted, res1.IdTagInfo.Status)

	res2, err := r.Start("CP1", 2, "tag2", 0, "2026-07-31T10:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, 2, res2.TransactionID)
}

func TestStartDrawsIDsFromStorePerTransaction(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	store := storage.NewMemoryStore()
	for i := 0; i < 499; i++ {
		_, err := store.NextTransactionID(context.Background())
		require.NoError(t, err)
	}
	r := New(clock.New(), az, store)

	res, err := r.Start("CP1", 1, "tag1", 0, "")
	require.NoError(t, err)
	assert.Equal(t, 500, res.TransactionID)
}

func TestStopPersistsCompletedTransaction(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	store := storage.NewMemoryStore()
	r := New(clock.New(), az, store)

	start, err := r.Start("CP1", 1, "tag1", 1000, "2026-07-31T10:00:00.000Z")
	require.NoError(t, err)

	_, err = r.Stop(start.TransactionID, 1500, "2026-07-31T10:30:00.000Z", nil, nil, nil)
	require.NoError(t, err)

	recs, err := store.RecentCompletedTransactions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, start.TransactionID, recs[0].ID)
	assert.Equal(t, "CP1", recs[0].ChargePointID)
	assert.Equal(t, 500, recs[0].EnergyUsed)
}

func TestLoadHistorySeedsCompletedTransactions(t *testing.T) {
	az := authz.New(clock.New(), false)
	store := storage.NewMemoryStore()
	require.NoError(t, store.AppendCompletedTransaction(context.Background(), storage.TransactionRecord{
		ID: 7, ChargePointID: "CP1", ConnectorID: 1, IdTag: "tag1",
		MeterStart: 0, MeterStop: 500, StartTime: "2026-07-31T09:00:00.000Z",
		StopTime: "2026-07-31T09:30:00.000Z", EnergyUsed: 500,
	}))
	r := New(clock.New(), az, store)

	require.NoError(t, r.LoadHistory(10))

	txn, ok := r.Get(7)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, txn.Status)
	assert.Equal(t, "CP1", txn.ChargePointID)
	assert.Equal(t, 500, txn.EnergyUsed())
}

func TestStopUnknownTransaction(t *testing.T) {
	az := authz.New(clock.New(), false)
	r := New(clock.New(), az, storage.NewMemoryStore())

	_, err := r.Stop(999, 100, "", nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStopComputesEnergyAndDuration(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	r := New(clock.New(), az, storage.NewMemoryStore())

	start, err := r.Start("CP1", 1, "tag1", 1000, "2026-07-31T10:00:00.000Z")
	require.NoError(t, err)

	stop, err := r.Stop(start.TransactionID, 1500, "2026-07-31T10:30:00.000Z", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stop.ConnectorID)
	assert.Equal(t, 500, stop.EnergyUsed)
	assert.Equal(t, int64(1800), stop.DurationSeconds)
	assert.Nil(t, stop.IdTagInfo)
}

func TestStopWithDifferentTagReturnsItsOwnVerdict(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("starter", ocpp.AuthAccepted, nil, nil)
	az.Register("stopper", ocpp.AuthBlocked, nil, nil)
	r := New(clock.New(), az, storage.NewMemoryStore())

	start, err := r.Start("CP1", 1, "starter", 0, "2026-07-31T10:00:00.000Z")
	require.NoError(t, err)

	stopper := "stopper"
	stop, err := r.Stop(start.TransactionID, 100, "2026-07-31T10:10:00.000Z", &stopper, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, stop.IdTagInfo)
	assert.Equal(t, ocpp.AuthBlocked, stop.IdTagInfo.Status)
}

func TestStopClearsActiveByConnector(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	r := New(clock.New(), az, storage.NewMemoryStore())

	start, err := r.Start("CP1", 1, "tag1", 0, "")
	require.NoError(t, err)

	_, ok := r.GetActiveByConnector("CP1", 1)
	require.True(t, ok)

	_, err = r.Stop(start.TransactionID, 0, "", nil, nil, nil)
	require.NoError(t, err)

	_, ok = r.GetActiveByConnector("CP1", 1)
	assert.False(t, ok)
}

func TestAppendMeterOnUnknownTransactionReturnsFalse(t *testing.T) {
	az := authz.New(clock.New(), false)
	r := New(clock.New(), az, storage.NewMemoryStore())

	ok := r.AppendMeter(42, 1, []ocpp.MeterValue{{Timestamp: "t", SampledValue: []ocpp.SampledValue{{Value: "1"}}}})
	assert.False(t, ok)
}

func TestAppendMeterAccumulatesInOrder(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	r := New(clock.New(), az, storage.NewMemoryStore())

	start, err := r.Start("CP1", 1, "tag1", 0, "")
	require.NoError(t, err)

	ok := r.AppendMeter(start.TransactionID, 1, []ocpp.MeterValue{{Timestamp: "t1", SampledValue: []ocpp.SampledValue{{Value: "100"}}}})
	require.True(t, ok)
	ok = r.AppendMeter(start.TransactionID, 1, []ocpp.MeterValue{{Timestamp: "t2", SampledValue: []ocpp.SampledValue{{Value: "200"}}}})
	require.True(t, ok)

	txn, ok := r.Get(start.TransactionID)
	require.True(t, ok)
	require.Len(t, txn.Samples, 2)
	assert.Equal(t, "t1", txn.Samples[0].Values[0].Timestamp)
	assert.Equal(t, "t2", txn.Samples[1].Values[0].Timestamp)
}

func TestByStationFiltersAcrossStations(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	az.Register("tag2", ocpp.AuthAccepted, nil, nil)
	r := New(clock.New(), az, storage.NewMemoryStore())

	_, err := r.Start("CP1", 1, "tag1", 0, "")
	require.NoError(t, err)
	_, err = r.Start("CP2", 1, "tag2", 0, "")
	require.NoError(t, err)

	cp1Txns := r.ByStation("CP1")
	require.Len(t, cp1Txns, 1)
	assert.Equal(t, "CP1", cp1Txns[0].ChargePointID)
}

func TestEndSessionCalledOnStop(t *testing.T) {
	az := authz.New(clock.New(), false)
	az.Register("tag1", ocpp.AuthAccepted, nil, nil)
	r := New(clock.New(), az, storage.NewMemoryStore())

	start, err := r.Start("CP1", 1, "tag1", 0, "")
	require.NoError(t, err)
	require.True(t, az.IsAuthorized("CP1", "tag1"))

	_, err = r.Stop(start.TransactionID, 0, "", nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, az.IsAuthorized("CP1", "tag1"))
}

func TestDurationSecondsHandlesUnparseableTimestamps(t *testing.T) {
	d := durationSeconds("garbage", "also-garbage")
	assert.Equal(t, int64(0), d)
}

func TestDurationSecondsNeverNegative(t *testing.T) {
	later := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	d := durationSeconds(clock.FormatISO(later), clock.FormatISO(earlier))
	assert.Equal(t, int64(0), d)
}
