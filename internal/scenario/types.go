package scenario

import (
	"sort"
	"time"

	"github.com/nerrad567/avbridge/internal/device"
)

// Definition is one declarative scenario. It is immutable once loaded;
// the registry hands out deep copies.
type Definition struct {
	ID          string `yaml:"scenario_id" json:"scenario_id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	RoomID      string `yaml:"room_id,omitempty" json:"room_id,omitempty"`

	// Roles binds role names to device IDs.
	Roles map[string]string `yaml:"roles,omitempty" json:"roles,omitempty"`

	// Devices lists member devices and the groups each participates in.
	// A group naming another member device declares that this device
	// depends on it.
	Devices map[string][]string `yaml:"devices" json:"devices"`

	StartupSequence  []CommandStep   `yaml:"startup_sequence" json:"startup_sequence"`
	ShutdownSequence ShutdownSequence `yaml:"shutdown_sequence" json:"shutdown_sequence"`

	ManualInstructions *ManualInstructions `yaml:"manual_instructions,omitempty" json:"manual_instructions,omitempty"`

	// Actions are named role commands offered while the scenario is active.
	Actions []RoleActionPreset `yaml:"actions,omitempty" json:"actions,omitempty"`

	// Source is the file the definition was loaded from.
	Source string `yaml:"-" json:"-"`
}

// CommandStep is one command in a sequence.
type CommandStep struct {
	Device    string         `yaml:"device" json:"device"`
	Command   string         `yaml:"command" json:"command"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Condition string         `yaml:"condition,omitempty" json:"condition,omitempty"`

	// DelayAfterMS is the settling time to wait after the step executes.
	DelayAfterMS int `yaml:"delay_after_ms,omitempty" json:"delay_after_ms,omitempty"`
}

// ShutdownSequence holds the two shutdown lists. A nil list means the key
// was absent from the source; an empty list is valid.
type ShutdownSequence struct {
	// Complete runs on a full shutdown to idle.
	Complete []CommandStep `yaml:"complete" json:"complete"`

	// Transition supplies per-device power-off steps when switching away.
	Transition []CommandStep `yaml:"transition" json:"transition"`
}

// ManualInstructions are shown to the user for steps no device can perform.
type ManualInstructions struct {
	Startup  []string `yaml:"startup,omitempty" json:"startup,omitempty"`
	Shutdown []string `yaml:"shutdown,omitempty" json:"shutdown,omitempty"`
}

// RoleActionPreset is a named role command, e.g. "mute" -> volume/mute.
type RoleActionPreset struct {
	Name    string         `yaml:"name" json:"name"`
	Role    string         `yaml:"role" json:"role"`
	Command string         `yaml:"command" json:"command"`
	Params  map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// State is the persisted snapshot of the active scenario.
type State struct {
	ScenarioID string                  `json:"scenario_id"`
	Devices    map[string]device.State `json:"devices"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// DeepCopy returns an independent copy of the state.
func (s *State) DeepCopy() *State {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Devices != nil {
		cpy.Devices = make(map[string]device.State, len(s.Devices))
		for id, ds := range s.Devices {
			cpy.Devices[id] = ds.Clone()
		}
	}
	return &cpy
}

// Summary is the list view of a scenario.
type Summary struct {
	ID          string   `json:"scenario_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	RoomID      string   `json:"room_id,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Presets     []string `json:"presets,omitempty"`
	Valid       bool     `json:"valid"`
	ErrorCount  int      `json:"error_count,omitempty"`
	Active      bool     `json:"active"`
}

// DeviceIDs returns every device the scenario references, sorted: the
// devices map, role targets and all three sequences.
func (d *Definition) DeviceIDs() []string {
	seen := make(map[string]struct{})
	for id := range d.Devices {
		seen[id] = struct{}{}
	}
	for _, id := range d.Roles {
		seen[id] = struct{}{}
	}
	for _, steps := range [][]CommandStep{d.StartupSequence, d.ShutdownSequence.Complete, d.ShutdownSequence.Transition} {
		for _, s := range steps {
			if s.Device != "" {
				seen[s.Device] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoleNames returns the role names, sorted.
func (d *Definition) RoleNames() []string {
	names := make([]string, 0, len(d.Roles))
	for name := range d.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the action preset called name.
func (d *Definition) Preset(name string) (RoleActionPreset, bool) {
	for _, p := range d.Actions {
		if p.Name == name {
			return p.deepCopy(), true
		}
	}
	return RoleActionPreset{}, false
}

// DeepCopy creates a complete independent copy of the definition.
// Nil slices stay nil so absent shutdown lists remain detectable.
func (d *Definition) DeepCopy() *Definition {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Roles != nil {
		cpy.Roles = make(map[string]string, len(d.Roles))
		for k, v := range d.Roles {
			cpy.Roles[k] = v
		}
	}
	if d.Devices != nil {
		cpy.Devices = make(map[string][]string, len(d.Devices))
		for id, groups := range d.Devices {
			cpy.Devices[id] = copyStrings(groups)
		}
	}
	cpy.StartupSequence = copySteps(d.StartupSequence)
	cpy.ShutdownSequence = ShutdownSequence{
		Complete:   copySteps(d.ShutdownSequence.Complete),
		Transition: copySteps(d.ShutdownSequence.Transition),
	}
	if d.ManualInstructions != nil {
		cpy.ManualInstructions = &ManualInstructions{
			Startup:  copyStrings(d.ManualInstructions.Startup),
			Shutdown: copyStrings(d.ManualInstructions.Shutdown),
		}
	}
	if d.Actions != nil {
		cpy.Actions = make([]RoleActionPreset, len(d.Actions))
		for i, a := range d.Actions {
			cpy.Actions[i] = a.deepCopy()
		}
	}
	return &cpy
}

func (p RoleActionPreset) deepCopy() RoleActionPreset {
	p.Params = device.CloneParams(p.Params)
	return p
}

func (s CommandStep) deepCopy() CommandStep {
	s.Params = device.CloneParams(s.Params)
	return s
}

func copySteps(steps []CommandStep) []CommandStep {
	if steps == nil {
		return nil
	}
	cpy := make([]CommandStep, len(steps))
	for i, s := range steps {
		cpy[i] = s.deepCopy()
	}
	return cpy
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
