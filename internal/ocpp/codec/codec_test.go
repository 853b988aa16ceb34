package codec

import (
	"testing"

	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCallRoundTrip(t *testing.T) {
	raw, err := EncodeCall("m1", ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{})
	require.NoError(t, err)

	d, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ocpp.Call, d.Type)
	assert.Equal(t, "m1", d.MessageID)
	assert.Equal(t, ocpp.ActionHeartbeat, d.Action)
}

func TestEncodeDecodeCallResultRoundTrip(t *testing.T) {
	raw, err := EncodeCallResult("m1", ocpp.HeartbeatResponse{CurrentTime: "2026-07-31T10:00:00.000Z"})
	require.NoError(t, err)

	d, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ocpp.CallResult, d.Type)
	assert.Equal(t, "m1", d.MessageID)
}

func TestEncodeDecodeCallErrorRoundTrip(t *testing.T) {
	raw, err := EncodeCallError("m1", "FormationViolation", "missing field", nil)
	require.NoError(t, err)

	d, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ocpp.CallError, d.Type)
	assert.Equal(t, "FormationViolation", d.ErrorCode)
	assert.Equal(t, "missing field", d.ErrorDescription)
}

func TestDecodeRejectsShortArray(t *testing.T) {
	_, err := Decode([]byte(`[2,"m1"]`))
	assert.Error(t, err)
}

func TestDecodeRejectsNonArray(t *testing.T) {
	_, err := Decode([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`[9,"m1","x",{}]`))
	assert.Error(t, err)
}

func TestDecodeRejectsWrongArityForCall(t *testing.T) {
	_, err := Decode([]byte(`[2,"m1","Heartbeat"]`))
	assert.Error(t, err)
}

func TestDecodeRejectsWrongArityForCallError(t *testing.T) {
	_, err := Decode([]byte(`[4,"m1","FormationViolation","desc"]`))
	assert.Error(t, err)
}
