package scenario

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/avbridge/internal/location"
)

type fakeRooms map[string]*location.Room

func (r fakeRooms) Get(id string) (*location.Room, error) {
	room, ok := r[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", location.ErrRoomNotFound, id)
	}
	return room, nil
}

func (r fakeRooms) ContainsDevice(roomID, deviceID string) bool {
	room, ok := r[roomID]
	return ok && room.HasDevice(deviceID)
}

func codes(errs ValidationErrors) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate_ValidScenarios(t *testing.T) {
	fleet := testFleet()
	for _, def := range []Definition{movieScenario(), musicScenario(), tvScenario()} {
		t.Run(def.ID, func(t *testing.T) {
			assert.Empty(t, Validate(&def, fleet, nil))
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	errs := Validate(nil, nil, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeInvalidStructure, errs[0].Code)
}

func TestValidate_Structure(t *testing.T) {
	def := movieScenario()
	def.ID = ""
	def.ShutdownSequence = ShutdownSequence{}
	def.StartupSequence = append(def.StartupSequence,
		CommandStep{Command: "power_on"},
		CommandStep{Device: "amp"},
		CommandStep{Device: "amp", Command: "mute", DelayAfterMS: -1},
		CommandStep{Device: "amp", Command: "mute", Condition: "device.power =="},
	)

	errs := Validate(&def, testFleet(), nil)

	assert.True(t, errs.HasCode(CodeInvalidStructure))
	assert.True(t, errs.HasCode(CodeInvalidCondition))
	var fields []string
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "scenario_id")
	assert.Contains(t, fields, "shutdown_sequence.complete")
	assert.Contains(t, fields, "shutdown_sequence.transition")
	assert.Contains(t, fields, "startup_sequence[5].device")
	assert.Contains(t, fields, "startup_sequence[6].command")
	assert.Contains(t, fields, "startup_sequence[7].delay_after_ms")
	assert.Contains(t, fields, "startup_sequence[8].condition")
}

func TestValidate_EmptyShutdownListsAreValid(t *testing.T) {
	def := musicScenario()
	def.ShutdownSequence = ShutdownSequence{Complete: []CommandStep{}, Transition: []CommandStep{}}

	assert.Empty(t, Validate(&def, testFleet(), nil))
}

func TestValidate_UnknownDevices(t *testing.T) {
	def := movieScenario()
	def.Devices["subwoofer"] = []string{"audio"}
	def.ShutdownSequence.Transition = append(def.ShutdownSequence.Transition, step("screen", "raise", nil))

	errs := Validate(&def, testFleet(), nil)

	assert.Equal(t, []string{CodeUnknownDevice, CodeUnknownDevice}, codes(errs))
	assert.Equal(t, "devices.subwoofer", errs[0].Field)
	assert.Equal(t, "shutdown_sequence.transition[2].device", errs[1].Field)
	for _, e := range errs {
		assert.Equal(t, "movie", e.ScenarioID)
		assert.Equal(t, SeverityCritical, e.Severity)
	}
}

func TestValidate_RoleGroupMismatch(t *testing.T) {
	def := movieScenario()
	def.Roles["display"] = "amp"
	def.Roles["source"] = "streamer"

	errs := Validate(&def, testFleet(), nil)

	assert.Equal(t, []string{CodeRoleGroupMismatch, CodeRoleGroupMismatch}, codes(errs))
}

func TestValidate_Groups(t *testing.T) {
	def := movieScenario()
	def.Devices["bluray"] = nil
	def.Devices["projector"] = []string{"display", "display"}

	errs := Validate(&def, testFleet(), nil)

	assert.True(t, errs.HasCode(CodeMissingGroups))
	assert.True(t, errs.HasCode(CodeDuplicateGroup))
}

func TestValidate_DependencyCycle(t *testing.T) {
	def := Definition{
		ID: "loop",
		Devices: map[string][]string{
			"amp":       {"audio", "projector"},
			"projector": {"display", "amp"},
		},
		ShutdownSequence: ShutdownSequence{Complete: []CommandStep{}, Transition: []CommandStep{}},
	}

	errs := Validate(&def, testFleet(), nil)

	require.Equal(t, []string{CodeDependencyCycle}, codes(errs))
	assert.Contains(t, errs[0].Message, "amp -> projector -> amp")
}

func TestValidate_SelfDependency(t *testing.T) {
	def := Definition{
		ID:               "self",
		Devices:          map[string][]string{"amp": {"amp"}},
		ShutdownSequence: ShutdownSequence{Complete: []CommandStep{}, Transition: []CommandStep{}},
	}

	errs := Validate(&def, testFleet(), nil)

	require.Equal(t, []string{CodeDependencyCycle}, codes(errs))
	assert.Contains(t, errs[0].Message, "amp -> amp")
}

func TestValidate_AcyclicDependencies(t *testing.T) {
	def := Definition{
		ID: "chain",
		Devices: map[string][]string{
			"projector": {"display", "amp"},
			"amp":       {"audio", "bluray"},
			"bluray":    {"source"},
		},
		ShutdownSequence: ShutdownSequence{Complete: []CommandStep{}, Transition: []CommandStep{}},
	}

	assert.Empty(t, Validate(&def, testFleet(), nil))
}

func TestValidate_Actions(t *testing.T) {
	def := movieScenario()
	def.Actions = append(def.Actions,
		RoleActionPreset{Name: "hush", Role: "volume", Command: "mute"},
		RoleActionPreset{Name: "lights", Role: "lighting", Command: "dim"},
		RoleActionPreset{Name: "mute", Role: "display", Command: "blank"},
		RoleActionPreset{Name: "broken"},
	)

	errs := Validate(&def, testFleet(), nil)

	assert.True(t, errs.HasCode(CodeDuplicateRoleCommand))
	assert.True(t, errs.HasCode(CodeUnknownRole))
	assert.Len(t, errs, 4)
}

func TestValidate_SequencesMayRepeatRoleCommands(t *testing.T) {
	def := movieScenario()
	def.StartupSequence = append(def.StartupSequence, step("amp", "input", map[string]any{"input": "hdmi1"}))

	assert.Empty(t, Validate(&def, testFleet(), nil))
}

func TestValidate_Room(t *testing.T) {
	rooms := fakeRooms{
		"lounge": {ID: "lounge", Devices: []string{"projector", "amp"}},
	}

	def := movieScenario()
	def.RoomID = "lounge"
	errs := Validate(&def, testFleet(), rooms)
	require.Equal(t, []string{CodeRoomMismatch}, codes(errs))
	assert.Equal(t, "devices.bluray", errs[0].Field)

	def.RoomID = "cellar"
	errs = Validate(&def, testFleet(), rooms)
	assert.Equal(t, []string{CodeUnknownRoom}, codes(errs))
}

func TestValidate_RoomCoversSequenceOnlyDevices(t *testing.T) {
	rooms := fakeRooms{
		"lounge": {ID: "lounge", Devices: []string{"projector", "amp", "bluray"}},
	}

	def := movieScenario()
	def.RoomID = "lounge"
	require.Empty(t, Validate(&def, testFleet(), rooms))

	def.StartupSequence = append(def.StartupSequence, step("tv", "power_on", nil))
	errs := Validate(&def, testFleet(), rooms)

	require.Equal(t, []string{CodeRoomMismatch}, codes(errs))
	assert.Equal(t, "startup_sequence[5].device", errs[0].Field)
	assert.Contains(t, errs[0].Message, "tv")

	def = movieScenario()
	def.RoomID = "lounge"
	def.ShutdownSequence.Complete = append(def.ShutdownSequence.Complete, step("streamer", "power_off", nil))
	errs = Validate(&def, testFleet(), rooms)

	require.Equal(t, []string{CodeRoomMismatch}, codes(errs))
	assert.Equal(t, "shutdown_sequence.complete[3].device", errs[0].Field)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	def := movieScenario()
	def.Devices["ghost"] = nil
	def.Roles["display"] = "bluray"
	def.ShutdownSequence.Complete = nil

	errs := Validate(&def, testFleet(), nil)

	assert.ElementsMatch(t, []string{
		CodeInvalidStructure,
		CodeUnknownDevice,
		CodeMissingGroups,
		CodeRoleGroupMismatch,
	}, codes(errs))
	assert.Contains(t, errs.Error(), "ghost")
}
