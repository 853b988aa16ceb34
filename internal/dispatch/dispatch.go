// Package dispatch implements handler dispatch (component 4.F): one pure
// function per OCPP action, wired to the authorization, charge-point and
// transaction registries. It never touches a WebSocket connection directly;
// the caller hands it a decoded CALL and gets back a response payload or a
// validation failure to turn into a CALLERROR.
package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chargepoint/central-system/internal/authz"
	"github.com/chargepoint/central-system/internal/chargepoint"
	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/chargepoint/central-system/internal/transaction"
	"github.com/chargepoint/central-system/internal/validation"
)

// Config carries the few operator-tunable knobs dispatch needs.
type Config struct {
	// HeartbeatInterval is the seconds value handed back in every
	// BootNotificationResponse.
	HeartbeatInterval int
}

// DataTransferHandler answers one vendor's DataTransfer payloads. Handlers
// are registered by vendor ID; an unregistered vendor ID falls back to
// {status: UnknownVendorId}.
type DataTransferHandler func(stationID string, req ocpp.DataTransferRequest) ocpp.DataTransferResponse

// Dispatcher routes a decoded CALL to the handler for its action.
type Dispatcher struct {
	cfg        Config
	chargepts  *chargepoint.Registry
	txns       *transaction.Registry
	authzReg   *authz.Registry
	validator  *validation.Validator
	clk        clock.Clock

	mu         sync.RWMutex
	extensions map[string]DataTransferHandler
}

// New builds a Dispatcher over the three registries and the schema
// validator.
func New(cfg Config, chargepts *chargepoint.Registry, txns *transaction.Registry, authzReg *authz.Registry, validator *validation.Validator, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		chargepts:  chargepts,
		txns:       txns,
		authzReg:   authzReg,
		validator:  validator,
		clk:        clk,
		extensions: make(map[string]DataTransferHandler),
	}
}

// RegisterDataTransfer installs a vendor extension handler. Registering
// under an already-registered vendor ID replaces the previous handler.
func (d *Dispatcher) RegisterDataTransfer(vendorID string, h DataTransferHandler) {
	d.mu.Lock()
	d.extensions[vendorID] = h
	d.mu.Unlock()
}

// Failure is re-exported so callers only need to import dispatch.
type Failure = validation.Failure

// HandleCall validates and executes one inbound CALL, returning the
// response payload to wrap in a CALLRESULT, or a Failure to wrap in a
// CALLERROR. Exactly one of the two is non-nil.
func (d *Dispatcher) HandleCall(stationID string, action ocpp.Action, rawPayload json.RawMessage) (interface{}, *Failure) {
	if !ocpp.KnownActions[action] {
		return nil, &Failure{Code: validation.CodeNotImplemented, Description: fmt.Sprintf("unrecognized action %q", action)}
	}

	switch action {
	case ocpp.ActionBootNotification:
		return d.handleBootNotification(stationID, rawPayload)
	case ocpp.ActionHeartbeat:
		return d.handleHeartbeat(stationID, rawPayload)
	case ocpp.ActionStatusNotification:
		return d.handleStatusNotification(stationID, rawPayload)
	case ocpp.ActionAuthorize:
		return d.handleAuthorize(stationID, rawPayload)
	case ocpp.ActionStartTransaction:
		return d.handleStartTransaction(stationID, rawPayload)
	case ocpp.ActionStopTransaction:
		return d.handleStopTransaction(stationID, rawPayload)
	case ocpp.ActionMeterValues:
		return d.handleMeterValues(stationID, rawPayload)
	case ocpp.ActionDataTransfer:
		return d.handleDataTransfer(stationID, rawPayload)
	default:
		// Reset/ChangeAvailability/GetConfiguration/ChangeConfiguration/
		// ClearCache/UnlockConnector are server-initiated only in this
		// deployment — a charge point sending one inbound is a protocol
		// error, not a missing handler.
		return nil, &Failure{Code: validation.CodeNotSupported, Description: fmt.Sprintf("%q is not accepted from a charge point", action)}
	}
}

// strictDecode rejects any JSON property the target struct does not declare,
// so a charge point sending an undocumented extra field gets a schema
// violation instead of silent acceptance.
func strictDecode(rawPayload json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(rawPayload))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// classifyDecodeError turns a strictDecode error into the matching CALLERROR
// code: an unrecognized property is a schema violation on the payload's
// contents, a wrong-typed field is a type violation, and everything else
// (malformed JSON) is a framing-level violation.
func classifyDecodeError(err error) *Failure {
	if strings.Contains(err.Error(), "unknown field") {
		return &Failure{Code: validation.CodePropertyConstraintViolation, Description: err.Error()}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &Failure{Code: validation.CodeTypeConstraintViolation, Description: err.Error()}
	}
	return &Failure{Code: validation.CodeFormationViolation, Description: err.Error()}
}

func (d *Dispatcher) decode(rawPayload json.RawMessage, action ocpp.Action, out interface{}) *Failure {
	if err := strictDecode(rawPayload, out); err != nil {
		return classifyDecodeError(err)
	}
	return d.validator.ValidateAction(action, out)
}

func (d *Dispatcher) handleBootNotification(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.BootNotificationRequest
	if f := d.decode(raw, ocpp.ActionBootNotification, &req); f != nil {
		return nil, f
	}

	d.chargepts.HandleBootNotification(stationID, req)

	return ocpp.BootNotificationResponse{
		Status:      ocpp.RegistrationAccepted,
		CurrentTime: d.clk.NowISO(),
		Interval:    d.cfg.HeartbeatInterval,
	}, nil
}

func (d *Dispatcher) handleHeartbeat(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.HeartbeatRequest
	if f := d.decode(raw, ocpp.ActionHeartbeat, &req); f != nil {
		return nil, f
	}
	d.chargepts.HandleHeartbeat(stationID)
	return ocpp.HeartbeatResponse{CurrentTime: d.clk.NowISO()}, nil
}

func (d *Dispatcher) handleStatusNotification(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.StatusNotificationRequest
	if f := d.decode(raw, ocpp.ActionStatusNotification, &req); f != nil {
		return nil, f
	}

	ts := ""
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	d.chargepts.HandleStatusNotification(stationID, chargepoint.StatusUpdate{
		ConnectorID: req.ConnectorId,
		Status:      req.Status,
		ErrorCode:   req.ErrorCode,
		Info:        derefOr(req.Info, ""),
		Timestamp:   ts,
	})

	return ocpp.StatusNotificationResponse{}, nil
}

func (d *Dispatcher) handleAuthorize(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.AuthorizeRequest
	if f := d.decode(raw, ocpp.ActionAuthorize, &req); f != nil {
		return nil, f
	}

	verdict := d.authzReg.Validate(req.IdTag)
	return ocpp.AuthorizeResponse{IdTagInfo: verdictToInfo(verdict)}, nil
}

func (d *Dispatcher) handleStartTransaction(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.StartTransactionRequest
	if f := d.decode(raw, ocpp.ActionStartTransaction, &req); f != nil {
		return nil, f
	}

	if !d.chargepts.IsRegistered(stationID) {
		return nil, &Failure{Code: validation.CodeSecurityError, Description: "station has not completed BootNotification"}
	}

	result, err := d.txns.Start(stationID, req.ConnectorId, req.IdTag, req.MeterStart, req.Timestamp)
	if err != nil {
		return nil, &Failure{Code: validation.CodeInternalError, Description: err.Error()}
	}

	if result.TransactionID > 0 {
		d.chargepts.SetConnectorTxnBinding(stationID, req.ConnectorId, &result.TransactionID)
		d.chargepts.SetStatus(stationID, ocpp.StatusCharging)
	}

	return ocpp.StartTransactionResponse{TransactionId: result.TransactionID, IdTagInfo: result.IdTagInfo}, nil
}

func (d *Dispatcher) handleStopTransaction(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.StopTransactionRequest
	if f := d.decode(raw, ocpp.ActionStopTransaction, &req); f != nil {
		return nil, f
	}

	if !d.chargepts.IsRegistered(stationID) {
		return nil, &Failure{Code: validation.CodeSecurityError, Description: "station has not completed BootNotification"}
	}

	var samples []transaction.MeterSample
	if len(req.TransactionData) > 0 {
		samples = []transaction.MeterSample{{ConnectorID: 0, Values: req.TransactionData}}
	}

	result, err := d.txns.Stop(req.TransactionId, req.MeterStop, req.Timestamp, req.IdTag, req.Reason, samples)
	if err != nil {
		// Unknown transaction ID: report via idTagInfo.status=Invalid
		// rather than a CALLERROR, so a flaky charge point retrying a
		// stop it already confirmed does not get stuck retry-looping a
		// CALLERROR it cannot recover from.
		return ocpp.StopTransactionResponse{IdTagInfo: &ocpp.IdTagInfo{Status: ocpp.AuthInvalid}}, nil
	}

	d.chargepts.SetConnectorTxnBinding(stationID, result.ConnectorID, nil)
	d.chargepts.SetConnectorStatus(stationID, result.ConnectorID, ocpp.StatusAvailable)

	return ocpp.StopTransactionResponse{IdTagInfo: result.IdTagInfo}, nil
}

func (d *Dispatcher) handleMeterValues(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.MeterValuesRequest
	if err := strictDecode(raw, &req); err != nil {
		return nil, classifyDecodeError(err)
	}
	if f := validation.ValidateEmptyMeterValueArray(len(req.MeterValue)); f != nil {
		return nil, f
	}
	if f := d.validator.ValidateAction(ocpp.ActionMeterValues, &req); f != nil {
		return nil, f
	}

	if !d.chargepts.IsRegistered(stationID) {
		return nil, &Failure{Code: validation.CodeSecurityError, Description: "station has not completed BootNotification"}
	}

	normalized := normalizeMeterValues(req.MeterValue)

	if req.TransactionId != nil {
		d.txns.AppendMeter(*req.TransactionId, req.ConnectorId, normalized)
	}

	if primary, ok := latestEnergyRegister(normalized); ok {
		d.chargepts.UpdateMeter(stationID, chargepoint.MeterUpdate{
			ConnectorID: req.ConnectorId,
			Primary:     &primary,
			Additional:  additionalReadings(normalized),
		})
	} else {
		d.chargepts.UpdateMeter(stationID, chargepoint.MeterUpdate{
			ConnectorID: req.ConnectorId,
			Additional:  additionalReadings(normalized),
		})
	}

	return ocpp.MeterValuesResponse{}, nil
}

func (d *Dispatcher) handleDataTransfer(stationID string, raw json.RawMessage) (interface{}, *Failure) {
	var req ocpp.DataTransferRequest
	if f := d.decode(raw, ocpp.ActionDataTransfer, &req); f != nil {
		return nil, f
	}

	d.mu.RLock()
	h, ok := d.extensions[req.VendorId]
	d.mu.RUnlock()
	if !ok {
		return ocpp.DataTransferResponse{Status: ocpp.DataTransferUnknownVendorId}, nil
	}

	resp := h(stationID, req)
	return resp, nil
}

func verdictToInfo(v authz.Verdict) ocpp.IdTagInfo {
	info := ocpp.IdTagInfo{Status: v.Status, ParentIdTag: v.ParentIdTag}
	if v.ExpiryDate != nil {
		iso := clock.FormatISO(*v.ExpiryDate)
		info.ExpiryDate = &iso
	}
	return info
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// normalizeMeterValues fills in the per-OCPP1.6 defaults a sample omits:
// context=Sample.Periodic, format=Raw, measurand=Energy.Active.Import.Register,
// and a unit inferred from the (possibly defaulted) measurand.
func normalizeMeterValues(values []ocpp.MeterValue) []ocpp.MeterValue {
	out := make([]ocpp.MeterValue, len(values))
	for i, mv := range values {
		samples := make([]ocpp.SampledValue, len(mv.SampledValue))
		for j, sv := range mv.SampledValue {
			samples[j] = normalizeSample(sv)
		}
		out[i] = ocpp.MeterValue{Timestamp: mv.Timestamp, SampledValue: samples}
	}
	return out
}

func normalizeSample(sv ocpp.SampledValue) ocpp.SampledValue {
	if sv.Context == nil {
		ctx := ocpp.ReadingContextSamplePeriodic
		sv.Context = &ctx
	}
	if sv.Format == nil {
		f := ocpp.ValueFormatRaw
		sv.Format = &f
	}
	if sv.Measurand == nil {
		m := ocpp.MeasurandEnergyActiveImportRegister
		sv.Measurand = &m
	}
	if sv.Unit == nil {
		u := ocpp.UnitForMeasurand(*sv.Measurand)
		sv.Unit = &u
	}
	return sv
}

// latestEnergyRegister scans every sample across every MeterValue for the
// newest Energy.Active.Import.Register or .Interval reading.
func latestEnergyRegister(values []ocpp.MeterValue) (chargepoint.MeterSnapshot, bool) {
	var best chargepoint.MeterSnapshot
	found := false
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			if sv.Measurand == nil || !ocpp.EnergyRegisterMeasurands[*sv.Measurand] {
				continue
			}
			if !found || mv.Timestamp >= best.Timestamp {
				var val float64
				fmt.Sscanf(sv.Value, "%g", &val)
				unit := ocpp.UnitWh
				if sv.Unit != nil {
					unit = *sv.Unit
				}
				best = chargepoint.MeterSnapshot{Value: val, Unit: unit, Timestamp: mv.Timestamp}
				found = true
			}
		}
	}
	return best, found
}

// additionalReadings collects every non-energy-register sample, keyed by
// measurand, keeping the latest value seen for each.
func additionalReadings(values []ocpp.MeterValue) map[ocpp.Measurand]chargepoint.SampledReading {
	out := make(map[ocpp.Measurand]chargepoint.SampledReading)
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			if sv.Measurand == nil || ocpp.EnergyRegisterMeasurands[*sv.Measurand] {
				continue
			}
			unit := ocpp.UnitOfMeasure("")
			if sv.Unit != nil {
				unit = *sv.Unit
			}
			existing, ok := out[*sv.Measurand]
			if !ok || mv.Timestamp >= existing.Timestamp {
				out[*sv.Measurand] = chargepoint.SampledReading{Value: sv.Value, Unit: unit, Timestamp: mv.Timestamp}
			}
		}
	}
	return out
}
