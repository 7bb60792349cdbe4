package scenario

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/avbridge/internal/device"
)

func TestDelegator_DirectPassthrough(t *testing.T) {
	fleet := testFleet()
	d := NewDelegator(fleet, fleet)
	movie := movieScenario()
	params := map[string]any{"level": 30}

	res, err := d.Resolve(context.Background(), &movie, "volume", "set_level", params)

	require.NoError(t, err)
	assert.Equal(t, "amp", res.DeviceID)
	assert.Equal(t, "set_level", res.Command)
	assert.Equal(t, map[string]any{"level": 30}, res.Params)
	assert.False(t, res.Mapped)
	assert.False(t, res.Skip)

	res.Params["level"] = 99
	assert.Equal(t, 30, params["level"])
}

func TestDelegator_NilRoleTable(t *testing.T) {
	d := NewDelegator(testFleet(), nil)
	movie := movieScenario()

	res, err := d.Resolve(context.Background(), &movie, "display", "power_on", nil)

	require.NoError(t, err)
	assert.Equal(t, "projector", res.DeviceID)
	assert.Equal(t, "power_on", res.Command)
}

func TestDelegator_UnknownRole(t *testing.T) {
	d := NewDelegator(testFleet(), nil)
	movie := movieScenario()

	_, err := d.Resolve(context.Background(), &movie, "lighting", "dim", nil)

	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDelegator_NoScenario(t *testing.T) {
	d := NewDelegator(testFleet(), nil)

	_, err := d.Resolve(context.Background(), nil, "volume", "set_level", nil)

	assert.ErrorIs(t, err, ErrNoActiveScenario)
}

func TestDelegator_MappedCommand(t *testing.T) {
	fleet := testFleet()
	fleet.mapRole("amp", "volume", "set_level", device.RoleCommand{
		Command: "MV",
		Params:  map[string]string{"level": "value"},
		Fixed:   map[string]any{"zone": "main", "level": "ignored"},
	})
	d := NewDelegator(fleet, fleet)
	movie := movieScenario()

	res, err := d.Resolve(context.Background(), &movie, "volume", "set_level", map[string]any{"level": 30, "ramp": true})

	require.NoError(t, err)
	assert.True(t, res.Mapped)
	assert.Equal(t, "MV", res.Command)
	assert.Equal(t, map[string]any{"value": 30, "ramp": true, "zone": "main", "level": "ignored"}, res.Params)
}

func TestDelegator_FixedParamsOverrideCaller(t *testing.T) {
	fleet := testFleet()
	fleet.mapRole("amp", "volume", "mute", device.RoleCommand{Fixed: map[string]any{"state": "on"}})
	d := NewDelegator(fleet, fleet)
	movie := movieScenario()

	res, err := d.Resolve(context.Background(), &movie, "volume", "mute", map[string]any{"state": "off"})

	require.NoError(t, err)
	assert.Equal(t, "mute", res.Command, "empty mapped command keeps the standard name")
	assert.Equal(t, "on", res.Params["state"])
}

func TestDelegator_ToggleSkippedWhenAlreadyInState(t *testing.T) {
	fleet := testFleet()
	fleet.device("bluray").state.Extra = map[string]any{"playing": true}
	fleet.mapRole("bluray", "source", "play", device.RoleCommand{
		Command:       "play_pause",
		RequiresState: &device.StateRequirement{Field: "playing", Value: true},
	})
	d := NewDelegator(fleet, fleet)
	def := movieScenario()
	def.Roles["source"] = "bluray"

	res, err := d.Resolve(context.Background(), &def, "source", "play", nil)

	require.NoError(t, err)
	assert.True(t, res.Skip)
	assert.Equal(t, "play_pause", res.Command)
	assert.NotEmpty(t, res.Reason)
}

func TestDelegator_ToggleSentWhenStateDiffers(t *testing.T) {
	fleet := testFleet()
	fleet.device("bluray").state.Extra = map[string]any{"playing": false}
	fleet.mapRole("bluray", "source", "play", device.RoleCommand{
		Command:       "play_pause",
		RequiresState: &device.StateRequirement{Field: "playing", Value: true},
	})
	d := NewDelegator(fleet, fleet)
	def := movieScenario()
	def.Roles["source"] = "bluray"

	res, err := d.Resolve(context.Background(), &def, "source", "play", nil)

	require.NoError(t, err)
	assert.False(t, res.Skip)
	assert.Equal(t, "play_pause", res.Command)
}

func TestDelegator_NumericRequirementMatchesAcrossTypes(t *testing.T) {
	fleet := testFleet()
	fleet.device("amp").state.Extra = map[string]any{"level": float64(30)}
	fleet.mapRole("amp", "volume", "preset", device.RoleCommand{
		RequiresState: &device.StateRequirement{Field: "level", Value: 30},
	})
	d := NewDelegator(fleet, fleet)
	movie := movieScenario()

	res, err := d.Resolve(context.Background(), &movie, "volume", "preset", nil)

	require.NoError(t, err)
	assert.True(t, res.Skip)
}

func TestDelegator_StateFailureFailsClosed(t *testing.T) {
	fleet := testFleet()
	fleet.device("projector").stateErr = errDeviceOffline
	fleet.mapRole("projector", "display", "power_on", device.RoleCommand{
		Command:       "power_toggle",
		RequiresState: &device.StateRequirement{Field: "power", Value: true},
	})
	d := NewDelegator(fleet, fleet)
	movie := movieScenario()

	_, err := d.Resolve(context.Background(), &movie, "display", "power_on", nil)

	assert.ErrorIs(t, err, errDeviceOffline)
	assert.Empty(t, fleet.calls())
}
