// Package codec encodes and decodes the OCPP 1.6J wire frame: a JSON array
// of three (CALLRESULT), four (CALL) or five (CALLERROR) elements. It never interprets the payload beyond
// splitting the envelope from it; schema validation is a separate concern.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/chargepoint/central-system/internal/ocpp"
)

// FrameError reports a malformed frame: wrong arity, bad type byte, or
// invalid JSON. The connection that received the frame closes on it (see
// wsconn.Connection.handleFrame); no CALLERROR is produced.
type FrameError struct {
	Op      string
	Message string
	Cause   error
}

func (e *FrameError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// EncodeCall builds a type-2 CALL frame.
func EncodeCall(messageID string, action ocpp.Action, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{int(ocpp.Call), messageID, string(action), payload})
}

// EncodeCallResult builds a type-3 CALLRESULT frame.
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{int(ocpp.CallResult), messageID, payload})
}

// EncodeCallError builds a type-4 CALLERROR frame.
func EncodeCallError(messageID, errorCode, errorDescription string, errorDetails interface{}) ([]byte, error) {
	if errorDetails == nil {
		errorDetails = struct{}{}
	}
	return json.Marshal([]interface{}{int(ocpp.CallError), messageID, errorCode, errorDescription, errorDetails})
}

// Decoded is the envelope of an inbound frame, payload left as raw JSON for
// the caller to unmarshal into the action-specific struct.
type Decoded struct {
	Type             ocpp.MessageType
	MessageID        string
	Action           ocpp.Action     // only set for type 2
	Payload          json.RawMessage // type 2 and 3
	ErrorCode        string          // only set for type 4
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Decode parses a raw inbound frame into its envelope. It rejects anything
// that is not a JSON array, a message type outside {2,3,4}, a non-string
// messageId, and an element count that does not match the type (4 for a
// CALL, 3 for a CALLRESULT, 5 for a CALLERROR).
func Decode(data []byte) (*Decoded, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FrameError{Op: "Decode", Message: "not a JSON array", Cause: err}
	}
	if len(raw) < 3 {
		return nil, &FrameError{Op: "Decode", Message: "frame array too short"}
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, &FrameError{Op: "Decode", Message: "message type is not an integer", Cause: err}
	}

	var messageID string
	if err := json.Unmarshal(raw[1], &messageID); err != nil {
		return nil, &FrameError{Op: "Decode", Message: "messageId is not a string", Cause: err}
	}

	d := &Decoded{Type: ocpp.MessageType(msgType), MessageID: messageID}

	switch d.Type {
	case ocpp.Call:
		if len(raw) != 4 {
			return nil, &FrameError{Op: "Decode", Message: "CALL frame must have 4 elements"}
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return nil, &FrameError{Op: "Decode", Message: "action is not a string", Cause: err}
		}
		d.Action = ocpp.Action(action)
		d.Payload = raw[3]
	case ocpp.CallResult:
		if len(raw) != 3 {
			return nil, &FrameError{Op: "Decode", Message: "CALLRESULT frame must have 3 elements"}
		}
		d.Payload = raw[2]
	case ocpp.CallError:
		if len(raw) != 5 {
			return nil, &FrameError{Op: "Decode", Message: "CALLERROR frame must have 5 elements"}
		}
		if err := json.Unmarshal(raw[2], &d.ErrorCode); err != nil {
			return nil, &FrameError{Op: "Decode", Message: "errorCode is not a string", Cause: err}
		}
		if err := json.Unmarshal(raw[3], &d.ErrorDescription); err != nil {
			return nil, &FrameError{Op: "Decode", Message: "errorDescription is not a string", Cause: err}
		}
		d.ErrorDetails = raw[4]
	default:
		return nil, &FrameError{Op: "Decode", Message: fmt.Sprintf("unknown message type %d", msgType)}
	}

	return d, nil
}
