// Package ocpp holds the OCPP 1.6J wire vocabulary: message framing types,
// the per-action request/response payload shapes, and the fixed enumerations
// they validate against. Nothing in this package touches a registry or a
// connection; it is pure data.
package ocpp

// MessageType is the leading integer of an OCPP frame.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

// Action names the dispatcher recognizes. Core profile plus the handful of
// configuration/reset actions a real central system fields even though they
// are not part of the core charging flow.
type Action string

const (
	ActionAuthorize              Action = "Authorize"
	ActionBootNotification       Action = "BootNotification"
	ActionChangeAvailability     Action = "ChangeAvailability"
	ActionChangeConfiguration    Action = "ChangeConfiguration"
	ActionClearCache             Action = "ClearCache"
	ActionDataTransfer           Action = "DataTransfer"
	ActionGetConfiguration       Action = "GetConfiguration"
	ActionHeartbeat              Action = "Heartbeat"
	ActionMeterValues            Action = "MeterValues"
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
	ActionReset                  Action = "Reset"
	ActionStartTransaction       Action = "StartTransaction"
	ActionStatusNotification     Action = "StatusNotification"
	ActionStopTransaction        Action = "StopTransaction"
	ActionUnlockConnector        Action = "UnlockConnector"
)

// KnownActions lists every Action the dispatcher will accept in a CALL
// frame; anything else is NotImplemented.
var KnownActions = map[Action]bool{
	ActionAuthorize:              true,
	ActionBootNotification:       true,
	ActionChangeAvailability:     true,
	ActionChangeConfiguration:    true,
	ActionClearCache:             true,
	ActionDataTransfer:           true,
	ActionGetConfiguration:       true,
	ActionHeartbeat:              true,
	ActionMeterValues:            true,
	ActionRemoteStartTransaction: true,
	ActionRemoteStopTransaction:  true,
	ActionReset:                  true,
	ActionStartTransaction:       true,
	ActionStatusNotification:     true,
	ActionStopTransaction:        true,
	ActionUnlockConnector:        true,
}

// ChargePointStatus is one of the nine OCPP connector/station status values.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

var validChargePointStatus = map[ChargePointStatus]bool{
	StatusAvailable: true, StatusPreparing: true, StatusCharging: true,
	StatusSuspendedEVSE: true, StatusSuspendedEV: true, StatusFinishing: true,
	StatusReserved: true, StatusUnavailable: true, StatusFaulted: true,
}

// ValidChargePointStatus reports whether s is one of the nine OCPP values.
func ValidChargePointStatus(s ChargePointStatus) bool {
	return validChargePointStatus[s]
}

// InProgressStatuses are the connector statuses a connector with a live
// transaction is allowed to carry.
var InProgressStatuses = map[ChargePointStatus]bool{
	StatusPreparing:     true,
	StatusCharging:      true,
	StatusSuspendedEV:   true,
	StatusSuspendedEVSE: true,
	StatusFinishing:     true,
}

// ChargePointErrorCode is the fixed OCPP error-code enum for StatusNotification.
type ChargePointErrorCode string

const (
	ErrorConnectorLockFailure ChargePointErrorCode = "ConnectorLockFailure"
	ErrorEVCommunicationError ChargePointErrorCode = "EVCommunicationError"
	ErrorGroundFailure        ChargePointErrorCode = "GroundFailure"
	ErrorHighTemperature      ChargePointErrorCode = "HighTemperature"
	ErrorInternalError        ChargePointErrorCode = "InternalError"
	ErrorLocalListConflict    ChargePointErrorCode = "LocalListConflict"
	ErrorNoError              ChargePointErrorCode = "NoError"
	ErrorOtherError           ChargePointErrorCode = "OtherError"
	ErrorOverCurrentFailure   ChargePointErrorCode = "OverCurrentFailure"
	ErrorOverVoltage          ChargePointErrorCode = "OverVoltage"
	ErrorPowerMeterFailure    ChargePointErrorCode = "PowerMeterFailure"
	ErrorPowerSwitchFailure   ChargePointErrorCode = "PowerSwitchFailure"
	ErrorReaderFailure        ChargePointErrorCode = "ReaderFailure"
	ErrorResetFailure         ChargePointErrorCode = "ResetFailure"
	ErrorUnderVoltage         ChargePointErrorCode = "UnderVoltage"
	ErrorWeakSignal           ChargePointErrorCode = "WeakSignal"
)

var validChargePointErrorCode = map[ChargePointErrorCode]bool{
	ErrorConnectorLockFailure: true, ErrorEVCommunicationError: true, ErrorGroundFailure: true,
	ErrorHighTemperature: true, ErrorInternalError: true, ErrorLocalListConflict: true,
	ErrorNoError: true, ErrorOtherError: true, ErrorOverCurrentFailure: true,
	ErrorOverVoltage: true, ErrorPowerMeterFailure: true, ErrorPowerSwitchFailure: true,
	ErrorReaderFailure: true, ErrorResetFailure: true, ErrorUnderVoltage: true, ErrorWeakSignal: true,
}

// ValidChargePointErrorCode reports whether c is one of the fixed
// StatusNotification error codes.
func ValidChargePointErrorCode(c ChargePointErrorCode) bool {
	return validChargePointErrorCode[c]
}

// RegistrationStatus is the BootNotification response status.
type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// AuthorizationStatus is the status carried in an IdTagInfo.
type AuthorizationStatus string

const (
	AuthAccepted     AuthorizationStatus = "Accepted"
	AuthBlocked      AuthorizationStatus = "Blocked"
	AuthExpired      AuthorizationStatus = "Expired"
	AuthInvalid      AuthorizationStatus = "Invalid"
	AuthConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

var validAuthorizationStatus = map[AuthorizationStatus]bool{
	AuthAccepted: true, AuthBlocked: true, AuthExpired: true, AuthInvalid: true, AuthConcurrentTx: true,
}

// ValidAuthorizationStatus reports whether s is one of the fixed IdTagInfo
// status values.
func ValidAuthorizationStatus(s AuthorizationStatus) bool {
	return validAuthorizationStatus[s]
}

type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

type ResetStatus string

const (
	ResetStatusAccepted ResetStatus = "Accepted"
	ResetStatusRejected ResetStatus = "Rejected"
)

type AvailabilityType string

const (
	AvailabilityInoperative AvailabilityType = "Inoperative"
	AvailabilityOperative   AvailabilityType = "Operative"
)

type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

type ConfigurationStatus string

const (
	ConfigurationAccepted       ConfigurationStatus = "Accepted"
	ConfigurationRejected       ConfigurationStatus = "Rejected"
	ConfigurationRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationNotSupported   ConfigurationStatus = "NotSupported"
)

type ClearCacheStatus string

const (
	ClearCacheAccepted ClearCacheStatus = "Accepted"
	ClearCacheRejected ClearCacheStatus = "Rejected"
)

type UnlockStatus string

const (
	UnlockUnlocked                   UnlockStatus = "Unlocked"
	UnlockFailed                     UnlockStatus = "UnlockFailed"
	UnlockNotSupported               UnlockStatus = "NotSupported"
	UnlockOngoingAuthorizedTransaction UnlockStatus = "OngoingAuthorizedTransaction"
)

// StopReason is the optional reason carried on StopTransaction.
type StopReason string

const (
	ReasonEmergencyStop  StopReason = "EmergencyStop"
	ReasonEVDisconnected StopReason = "EVDisconnected"
	ReasonHardReset      StopReason = "HardReset"
	ReasonLocal          StopReason = "Local"
	ReasonOther          StopReason = "Other"
	ReasonPowerLoss      StopReason = "PowerLoss"
	ReasonReboot         StopReason = "Reboot"
	ReasonRemote         StopReason = "Remote"
	ReasonSoftReset      StopReason = "SoftReset"
	ReasonUnlockCommand  StopReason = "UnlockCommand"
	ReasonDeAuthorized   StopReason = "DeAuthorized"
)

type RemoteStartStopStatus string

const (
	RemoteAccepted RemoteStartStopStatus = "Accepted"
	RemoteRejected RemoteStartStopStatus = "Rejected"
)

type DataTransferStatus string

const (
	DataTransferAccepted         DataTransferStatus = "Accepted"
	DataTransferRejected         DataTransferStatus = "Rejected"
	DataTransferUnknownMessageId DataTransferStatus = "UnknownMessageId"
	DataTransferUnknownVendorId  DataTransferStatus = "UnknownVendorId"
)

// DateTime fields on the wire are plain RFC3339-with-milliseconds strings;
// clock.FormatISO/ParseISO is the single place that owns that format, so no
// dedicated marshaling type is needed here.
type DateTime = string

// Measurand is a sampled-value kind.
type Measurand string

const (
	MeasurandCurrentExport                Measurand = "Current.Export"
	MeasurandCurrentImport                Measurand = "Current.Import"
	MeasurandCurrentOffered               Measurand = "Current.Offered"
	MeasurandEnergyActiveExportRegister   Measurand = "Energy.Active.Export.Register"
	MeasurandEnergyActiveImportRegister   Measurand = "Energy.Active.Import.Register"
	MeasurandEnergyReactiveExportRegister Measurand = "Energy.Reactive.Export.Register"
	MeasurandEnergyReactiveImportRegister Measurand = "Energy.Reactive.Import.Register"
	MeasurandEnergyActiveExportInterval   Measurand = "Energy.Active.Export.Interval"
	MeasurandEnergyActiveImportInterval   Measurand = "Energy.Active.Import.Interval"
	MeasurandFrequency                    Measurand = "Frequency"
	MeasurandPowerActiveImport            Measurand = "Power.Active.Import"
	MeasurandPowerOffered                 Measurand = "Power.Offered"
	MeasurandSoC                          Measurand = "SoC"
	MeasurandTemperature                  Measurand = "Temperature"
	MeasurandVoltage                      Measurand = "Voltage"
)

// EnergyRegisterMeasurands are the two measurands that update a connector's
// primary MeterSnapshot; everything else is stored alongside only.
var EnergyRegisterMeasurands = map[Measurand]bool{
	MeasurandEnergyActiveImportRegister: true,
	MeasurandEnergyActiveImportInterval: true,
}

type ReadingContext string

const (
	ReadingContextSamplePeriodic   ReadingContext = "Sample.Periodic"
	ReadingContextSampleClock      ReadingContext = "Sample.Clock"
	ReadingContextTransactionBegin ReadingContext = "Transaction.Begin"
	ReadingContextTransactionEnd   ReadingContext = "Transaction.End"
	ReadingContextTrigger          ReadingContext = "Trigger"
	ReadingContextOther            ReadingContext = "Other"
)

type ValueFormat string

const (
	ValueFormatRaw        ValueFormat = "Raw"
	ValueFormatSignedData ValueFormat = "SignedData"
)

type Phase string

type Location string

type UnitOfMeasure string

const (
	UnitWh  UnitOfMeasure = "Wh"
	UnitKWh UnitOfMeasure = "kWh"
	UnitW   UnitOfMeasure = "W"
	UnitKW  UnitOfMeasure = "kW"
	UnitA   UnitOfMeasure = "A"
	UnitV   UnitOfMeasure = "V"
)

// UnitForMeasurand returns the default unit OCPP assigns a measurand when
// the sample omits one.
func UnitForMeasurand(m Measurand) UnitOfMeasure {
	switch m {
	case MeasurandEnergyActiveExportRegister, MeasurandEnergyActiveImportRegister,
		MeasurandEnergyActiveExportInterval, MeasurandEnergyActiveImportInterval:
		return UnitWh
	case MeasurandPowerActiveImport, MeasurandPowerOffered:
		return UnitW
	case MeasurandCurrentExport, MeasurandCurrentImport, MeasurandCurrentOffered:
		return UnitA
	case MeasurandVoltage:
		return UnitV
	default:
		return UnitWh
	}
}

// IdTagInfo is the authorization verdict attached to Authorize,
// StartTransaction and StopTransaction responses.
type IdTagInfo struct {
	ExpiryDate  *string             `json:"expiryDate,omitempty"`
	ParentIdTag *string             `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Status      AuthorizationStatus `json:"status" validate:"required,ocpp_authstatus"`
}

// KeyValue is one entry of a GetConfiguration response.
type KeyValue struct {
	Key      string  `json:"key" validate:"required,max=50"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty" validate:"omitempty,max=500"`
}

// SampledValue is one measurand reading inside a MeterValue.
type SampledValue struct {
	Value     string          `json:"value" validate:"required"`
	Context   *ReadingContext `json:"context,omitempty"`
	Format    *ValueFormat    `json:"format,omitempty"`
	Measurand *Measurand      `json:"measurand,omitempty"`
	Phase     *Phase          `json:"phase,omitempty"`
	Location  *Location       `json:"location,omitempty"`
	Unit      *UnitOfMeasure  `json:"unit,omitempty"`
}

// MeterValue is a timestamped batch of SampledValues.
type MeterValue struct {
	Timestamp    string         `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1"`
}
