package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/chargepoint/central-system/internal/authz"
	"github.com/chargepoint/central-system/internal/chargepoint"
	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/chargepoint/central-system/internal/storage"
	"github.com/chargepoint/central-system/internal/transaction"
	"github.com/chargepoint/central-system/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() (*Dispatcher, *chargepoint.Registry, *authz.Registry) {
	clk := clock.New()
	cps := chargepoint.New(clk, nil)
	az := authz.New(clk, false)
	txns := transaction.New(clk, az, storage.NewMemoryStore())
	val := validation.New()
	d := New(Config{HeartbeatInterval: 300}, cps, txns, az, val, clk)
	return d, cps, az
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestUnknownActionIsNotImplemented(t *testing.T) {
	d, _, _ := newTestDispatcher()
	_, f := d.HandleCall("CP1", ocpp.Action("FrobulateWidgets"), json.RawMessage(`{}`))
	require.NotNil(t, f)
	assert.Equal(t, validation.CodeNotImplemented, f.Code)
}

func TestServerOnlyActionFromChargePointIsNotSupported(t *testing.T) {
	d, _, _ := newTestDispatcher()
	_, f := d.HandleCall("CP1", ocpp.ActionReset, mustJSON(t, ocpp.ResetRequest{Type: ocpp.ResetHard}))
	require.NotNil(t, f)
	assert.Equal(t, validation.CodeNotSupported, f.Code)
}

func TestBootNotificationAcceptsAndRegisters(t *testing.T) {
	d, cps, _ := newTestDispatcher()
	resp, f := d.HandleCall("CP1", ocpp.ActionBootNotification, mustJSON(t, ocpp.BootNotificationRequest{
		ChargePointVendor: "Acme", ChargePointModel: "X1",
	}))
	require.Nil(t, f)
	br := resp.(ocpp.BootNotificationResponse)
	assert.Equal(t, ocpp.RegistrationAccepted, br.Status)
	assert.Equal(t, 300, br.Interval)
	assert.True(t, cps.IsRegistered("CP1"))
}

func TestBootNotificationMissingVendorIsFormationViolation(t *testing.T) {
	d, _, _ := newTestDispatcher()
	_, f := d.HandleCall("CP1", ocpp.ActionBootNotification, mustJSON(t, ocpp.BootNotificationRequest{
		ChargePointModel: "X1",
	}))
	require.NotNil(t, f)
	assert.Equal(t, validation.CodeFormationViolation, f.Code)
}

func TestHeartbeatReturnsCurrentTime(t *testing.T) {
	d, _, _ := newTestDispatcher()
	resp, f := d.HandleCall("CP1", ocpp.ActionHeartbeat, mustJSON(t, ocpp.HeartbeatRequest{}))
	require.Nil(t, f)
	hr := resp.(ocpp.HeartbeatResponse)
	assert.NotEmpty(t, hr.CurrentTime)
}

func TestHeartbeatWithUnknownFieldIsPropertyConstraintViolation(t *testing.T) {
	d, _, _ := newTestDispatcher()
	_, f := d.HandleCall("CP1", ocpp.ActionHeartbeat, json.RawMessage(`{"bogusField":"x"}`))
	require.NotNil(t, f)
	assert.Equal(t, validation.CodePropertyConstraintViolation, f.Code)
}

func TestStartTransactionRejectsUnregisteredStation(t *testing.T) {
	d, _, _ := newTestDispatcher()
	_, f := d.HandleCall("CP1", ocpp.ActionStartTransaction, mustJSON(t, ocpp.StartTransactionRequest{
		ConnectorId: 1, IdTag: "tag1", MeterStart: 0, Timestamp: "2026-07-31T10:00:00.000Z",
	}))
	require.NotNil(t, f)
	assert.Equal(t, validation.CodeSecurityError, f.Code)
}

func TestHappyPathTransactionFlow(t *testing.T) {
	d, cps, az := newTestDispatcher()
	az.Register("valid123", ocpp.AuthAccepted, nil, nil)

	_, f := d.HandleCall("CP001", ocpp.ActionBootNotification, mustJSON(t, ocpp.BootNotificationRequest{
		ChargePointVendor: "V", ChargePointModel: "M",
	}))
	require.Nil(t, f)

	authResp, f := d.HandleCall("CP001", ocpp.ActionAuthorize, mustJSON(t, ocpp.AuthorizeRequest{IdTag: "valid123"}))
	require.Nil(t, f)
	assert.Equal(t, ocpp.AuthAccepted, authResp.(ocpp.AuthorizeResponse).IdTagInfo.Status)

	startResp, f := d.HandleCall("CP001", ocpp.ActionStartTransaction, mustJSON(t, ocpp.StartTransactionRequest{
		ConnectorId: 1, IdTag: "valid123", MeterStart: 1000, Timestamp: "2026-07-31T10:00:00.000Z",
	}))
	require.Nil(t, f)
	st := startResp.(ocpp.StartTransactionResponse)
	assert.Equal(t, 1, st.TransactionId)

	snap, ok := cps.Get("CP001")
	require.True(t, ok)
	assert.Equal(t, ocpp.StatusCharging, snap.Status)
	require.Contains(t, snap.Connectors, 1)
	require.NotNil(t, snap.Connectors[1].TransactionID)
	assert.Equal(t, 1, *snap.Connectors[1].TransactionID)

	txnID := st.TransactionId
	_, f = d.HandleCall("CP001", ocpp.ActionMeterValues, mustJSON(t, ocpp.MeterValuesRequest{
		ConnectorId:   1,
		TransactionId: &txnID,
		MeterValue: []ocpp.MeterValue{{
			Timestamp:    "2026-07-31T10:10:00.000Z",
			SampledValue: []ocpp.SampledValue{{Value: "1250"}},
		}},
	}))
	require.Nil(t, f)

	snap, _ = cps.Get("CP001")
	assert.Equal(t, float64(1250), snap.Connectors[1].Meter.Value)

	stopResp, f := d.HandleCall("CP001", ocpp.ActionStopTransaction, mustJSON(t, ocpp.StopTransactionRequest{
		TransactionId: txnID, MeterStop: 1500, Timestamp: "2026-07-31T10:30:00.000Z",
	}))
	require.Nil(t, f)
	_ = stopResp.(ocpp.StopTransactionResponse)

	snap, _ = cps.Get("CP001")
	assert.Equal(t, ocpp.StatusAvailable, snap.Connectors[1].Status)
	assert.Nil(t, snap.Connectors[1].TransactionID)
}

func TestUnauthorizedTagProducesNegativeTransactionID(t *testing.T) {
	d, cps, _ := newTestDispatcher()
	d.HandleCall("CP001", ocpp.ActionBootNotification, mustJSON(t, ocpp.BootNotificationRequest{ChargePointVendor: "V", ChargePointModel: "M"}))

	resp, f := d.HandleCall("CP001", ocpp.ActionStartTransaction, mustJSON(t, ocpp.StartTransactionRequest{
		ConnectorId: 1, IdTag: "blocked789", MeterStart: 0, Timestamp: "2026-07-31T10:00:00.000Z",
	}))
	require.Nil(t, f)
	st := resp.(ocpp.StartTransactionResponse)
	assert.Equal(t, -1, st.TransactionId)
	assert.Equal(t, ocpp.AuthInvalid, st.IdTagInfo.Status)

	snap, _ := cps.Get("CP001")
	assert.NotContains(t, snap.Connectors, 1)
}

func TestMeterValuesEmptyArrayIsOccurrenceViolation(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.HandleCall("CP001", ocpp.ActionBootNotification, mustJSON(t, ocpp.BootNotificationRequest{ChargePointVendor: "V", ChargePointModel: "M"}))

	_, f := d.HandleCall("CP001", ocpp.ActionMeterValues, mustJSON(t, ocpp.MeterValuesRequest{
		ConnectorId: 1, MeterValue: []ocpp.MeterValue{},
	}))
	require.NotNil(t, f)
	assert.Equal(t, validation.CodeOccurrenceConstraintViolation, f.Code)
}

func TestStopTransactionUnknownIDReportsInvalidIdTagInfo(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.HandleCall("CP001", ocpp.ActionBootNotification, mustJSON(t, ocpp.BootNotificationRequest{ChargePointVendor: "V", ChargePointModel: "M"}))

	resp, f := d.HandleCall("CP001", ocpp.ActionStopTransaction, mustJSON(t, ocpp.StopTransactionRequest{
		TransactionId: 999, MeterStop: 100, Timestamp: "2026-07-31T10:00:00.000Z",
	}))
	require.Nil(t, f)
	sr := resp.(ocpp.StopTransactionResponse)
	require.NotNil(t, sr.IdTagInfo)
	assert.Equal(t, ocpp.AuthInvalid, sr.IdTagInfo.Status)
}

func TestDataTransferFallsBackToUnknownVendor(t *testing.T) {
	d, _, _ := newTestDispatcher()
	resp, f := d.HandleCall("CP1", ocpp.ActionDataTransfer, mustJSON(t, ocpp.DataTransferRequest{VendorId: "com.unknown"}))
	require.Nil(t, f)
	assert.Equal(t, ocpp.DataTransferUnknownVendorId, resp.(ocpp.DataTransferResponse).Status)
}

func TestDataTransferUsesRegisteredExtension(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.RegisterDataTransfer("com.acme", func(stationID string, req ocpp.DataTransferRequest) ocpp.DataTransferResponse {
		return ocpp.DataTransferResponse{Status: ocpp.DataTransferAccepted}
	})

	resp, f := d.HandleCall("CP1", ocpp.ActionDataTransfer, mustJSON(t, ocpp.DataTransferRequest{VendorId: "com.acme"}))
	require.Nil(t, f)
	assert.Equal(t, ocpp.DataTransferAccepted, resp.(ocpp.DataTransferResponse).Status)
}

func TestStatusNotificationConnectorZero(t *testing.T) {
	d, cps, _ := newTestDispatcher()
	info := "ok"
	_, f := d.HandleCall("CP1", ocpp.ActionStatusNotification, mustJSON(t, ocpp.StatusNotificationRequest{
		ConnectorId: 0, ErrorCode: ocpp.ErrorNoError, Status: ocpp.StatusAvailable, Info: &info,
	}))
	require.Nil(t, f)
	snap, ok := cps.Get("CP1")
	require.True(t, ok)
	assert.Equal(t, ocpp.StatusAvailable, snap.Status)
}
