package tracking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONBackendSample(t *testing.T) {
	raw := `{root : [[{sts:'Running', vehicle_no:'MP09FA6814', latitude:'22.7196', longitude:'75.8577', speed:'42'}]]}`

	var envelope statusEnvelope
	require.NoError(t, json.Unmarshal([]byte(NormalizeJSON(raw)), &envelope))

	status := envelope.vehicle()
	require.NotNil(t, status)
	assert.True(t, status.IsRunning())
	assert.Equal(t, "MP09FA6814", status.VehicleNo)
	assert.InDelta(t, 22.7196, status.LatitudeFloat(), 1e-9)
	assert.InDelta(t, 75.8577, status.LongitudeFloat(), 1e-9)
	assert.Equal(t, 42, status.SpeedInt())
}

func TestNormalizeJSONStrictInputUnchanged(t *testing.T) {
	strict := `{"root":[[{"sts":"Stopped","vehicle_no":"MP09FA6814"}]]}`
	assert.Equal(t, strict, NormalizeJSON(strict))
}

func TestNormalizeJSONNestedObject(t *testing.T) {
	raw := `{root : [[{sts:'Idle', driver_json:{name:'Ramesh', mobile_no:'9800000000'}}]]}`

	var envelope statusEnvelope
	require.NoError(t, json.Unmarshal([]byte(NormalizeJSON(raw)), &envelope))

	status := envelope.vehicle()
	require.NotNil(t, status)
	assert.True(t, status.IsIdle())
	assert.Equal(t, "Ramesh", status.Driver.Name)
	assert.Equal(t, "9800000000", status.Driver.MobileNo)
}

func TestNormalizeJSONColonInsideStringValue(t *testing.T) {
	raw := `{root : [[{location:'NH-52: Near Bypass', sts:'Stopped'}]]}`

	var envelope statusEnvelope
	require.NoError(t, json.Unmarshal([]byte(NormalizeJSON(raw)), &envelope))

	status := envelope.vehicle()
	require.NotNil(t, status)
	assert.Equal(t, "NH-52: Near Bypass", status.Location)
}

func TestNormalizeJSONEmptyPayload(t *testing.T) {
	raw := `{root : [[]]}`

	var envelope statusEnvelope
	require.NoError(t, json.Unmarshal([]byte(NormalizeJSON(raw)), &envelope))
	assert.Nil(t, envelope.vehicle())
}
