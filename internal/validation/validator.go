// Package validation implements the schema validator (component 4.E): pure
// per-action request checking that never touches a registry. It maps
// go-playground/validator/v10 struct-tag failures onto the fixed OCPP
// CALLERROR code set.
package validation

import (
	"fmt"
	"regexp"

	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/go-playground/validator/v10"
)

// CALLERROR codes an OCPP 1.6J central system can return.
const (
	CodeFormationViolation           = "FormationViolation"
	CodePropertyConstraintViolation  = "PropertyConstraintViolation"
	CodeTypeConstraintViolation      = "TypeConstraintViolation"
	CodeOccurrenceConstraintViolation = "OccurrenceConstraintViolation"
	CodeProtocolError                = "ProtocolError"
	CodeNotImplemented                = "NotImplemented"
	CodeNotSupported                  = "NotSupported"
	CodeInternalError                 = "InternalError"
	CodeSecurityError                 = "SecurityError"
	CodeGenericError                  = "GenericError"
)

// Failure is a validator rejection: a CALLERROR code plus a human-readable
// description. It satisfies error so handlers and the dispatcher can treat
// it uniformly.
type Failure struct {
	Code        string
	Description string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Description)
}

var idTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)

// Validator is stateless and safe for concurrent use; it holds no registry
// reference.
type Validator struct {
	v *validator.Validate
}

// New builds the schema validator, registering the OCPP-specific tags the
// request/response structs in internal/ocpp declare.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("ocpp_idtoken", func(fl validator.FieldLevel) bool {
		return idTokenPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("ocpp_status", func(fl validator.FieldLevel) bool {
		return ocpp.ValidChargePointStatus(ocpp.ChargePointStatus(fl.Field().String()))
	})
	_ = v.RegisterValidation("ocpp_errorcode", func(fl validator.FieldLevel) bool {
		return ocpp.ValidChargePointErrorCode(ocpp.ChargePointErrorCode(fl.Field().String()))
	})
	_ = v.RegisterValidation("ocpp_authstatus", func(fl validator.FieldLevel) bool {
		return ocpp.ValidAuthorizationStatus(ocpp.AuthorizationStatus(fl.Field().String()))
	})
	return &Validator{v: v}
}

// ValidateAction runs struct-tag validation over a decoded payload and
// classifies the first failure into a CALLERROR code. An action outside
// ocpp.KnownActions is rejected with NotImplemented before any struct
// check; the struct tags carry the actual constraints.
func (val *Validator) ValidateAction(action ocpp.Action, payload interface{}) *Failure {
	if !ocpp.KnownActions[action] {
		return &Failure{Code: CodeNotImplemented, Description: fmt.Sprintf("unrecognized action %q", action)}
	}

	err := val.v.Struct(payload)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return &Failure{Code: CodeFormationViolation, Description: err.Error()}
	}

	fe := fieldErrs[0]
	return &Failure{Code: codeForTag(fe.Tag(), fe.Kind().String()), Description: describe(fe)}
}

// codeForTag maps a validator tag to the OCPP CALLERROR taxonomy.
func codeForTag(tag string, kind string) string {
	switch tag {
	case "required":
		return CodeFormationViolation
	case "oneof", "ocpp_idtoken", "ocpp_status", "ocpp_errorcode", "ocpp_authstatus":
		return CodePropertyConstraintViolation
	case "max", "min":
		if kind == "slice" || kind == "array" {
			return CodeOccurrenceConstraintViolation
		}
		return CodeTypeConstraintViolation
	default:
		return CodePropertyConstraintViolation
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %q is required", fe.Field())
	case "max":
		return fmt.Sprintf("field %q exceeds maximum of %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("field %q is below minimum of %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field %q must be one of [%s]", fe.Field(), fe.Param())
	case "ocpp_idtoken":
		return fmt.Sprintf("field %q is not a well-formed idTag", fe.Field())
	case "ocpp_status", "ocpp_errorcode", "ocpp_authstatus":
		return fmt.Sprintf("field %q has an out-of-enum value", fe.Field())
	default:
		return fmt.Sprintf("field %q failed %q", fe.Field(), fe.Tag())
	}
}

// ValidateEmptyMeterValueArray reports a meterValue list of length zero as
// an OccurrenceConstraintViolation. The dispatcher calls it after decoding
// and before struct-tag validation, so an absent meterValue gets this code
// too, rather than the FormationViolation the "required" tag would give it.
func ValidateEmptyMeterValueArray(n int) *Failure {
	if n == 0 {
		return &Failure{Code: CodeOccurrenceConstraintViolation, Description: "meterValue must contain at least one entry"}
	}
	return nil
}

// ValidateMessageID enforces the wire-level messageId constraints: non-empty
// and at most 36 characters.
func ValidateMessageID(id string) *Failure {
	if id == "" {
		return &Failure{Code: CodeFormationViolation, Description: "messageId must not be empty"}
	}
	if len(id) > 36 {
		return &Failure{Code: CodePropertyConstraintViolation, Description: "messageId exceeds 36 characters"}
	}
	return nil
}

// IsKnownAction is a quick "is this a known action" test for callers that
// do not need full struct validation.
func IsKnownAction(action string) bool {
	return ocpp.KnownActions[ocpp.Action(action)]
}
