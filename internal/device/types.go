package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Power is a tri-state power reading. Bridges that cannot sense power
// leave it unknown.
type Power int

const (
	PowerUnknown Power = iota
	PowerOff
	PowerOn
)

// PowerFromBool converts a boolean reading to Power.
func PowerFromBool(on bool) Power {
	if on {
		return PowerOn
	}
	return PowerOff
}

// Known reports whether the power state has been observed.
func (p Power) Known() bool {
	return p == PowerOn || p == PowerOff
}

// Value returns the reading as a condition operand: true, false or nil.
func (p Power) Value() any {
	switch p {
	case PowerOn:
		return true
	case PowerOff:
		return false
	default:
		return nil
	}
}

func (p Power) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes Power as true, false or null.
func (p Power) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value())
}

// UnmarshalJSON accepts true, false or null.
func (p *Power) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = PowerUnknown
		return nil
	}
	var on bool
	if err := json.Unmarshal(data, &on); err != nil {
		return fmt.Errorf("%w: power must be true, false or null", ErrInvalidState)
	}
	*p = PowerFromBool(on)
	return nil
}

// State is the cached runtime snapshot of one device.
type State struct {
	Power  Power          `json:"power"`
	Input  string         `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// Clone returns an independent copy of the state.
func (s State) Clone() State {
	s.Extra = deepCopyMap(s.Extra)
	return s
}

// Lookup resolves a field path against the snapshot.
//
// Supported paths: "power", "input", "output", "extra" and "extra.<k>...".
// Any other top-level name is looked up in Extra, so bridge-specific fields
// such as "volume" are addressable directly. ok is false when the field does
// not exist.
func (s State) Lookup(path ...string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	switch path[0] {
	case "power":
		return s.Power.Value(), len(path) == 1
	case "input":
		return s.Input, len(path) == 1
	case "output":
		return s.Output, len(path) == 1
	case "extra":
		if len(path) == 1 {
			return s.Extra, s.Extra != nil
		}
		return lookupNested(s.Extra, path[1:])
	default:
		return lookupNested(s.Extra, path)
	}
}

func lookupNested(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set assigns a field by name. Unknown names go to Extra.
func (s *State) Set(field string, value any) error {
	switch field {
	case "power":
		p, err := toPower(value)
		if err != nil {
			return err
		}
		s.Power = p
	case "input":
		s.Input = fmt.Sprint(value)
	case "output":
		s.Output = fmt.Sprint(value)
	default:
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[field] = value
	}
	return nil
}

// toPower accepts booleans and the usual on/off spellings.
func toPower(v any) (Power, error) {
	switch val := v.(type) {
	case nil:
		return PowerUnknown, nil
	case bool:
		return PowerFromBool(val), nil
	case Power:
		return val, nil
	case string:
		switch val {
		case "on", "ON", "On", "true", "1":
			return PowerOn, nil
		case "off", "OFF", "Off", "false", "0":
			return PowerOff, nil
		}
	case int:
		return PowerFromBool(val != 0), nil
	case float64:
		return PowerFromBool(val != 0), nil
	}
	return PowerUnknown, fmt.Errorf("%w: cannot interpret %v as power", ErrInvalidState, v)
}

// CommandSpec declares one command a device accepts.
type CommandSpec struct {
	// Params are defaults merged under the caller's parameters.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	// Effects are applied to the cached state after the command succeeds.
	// A string value "$name" takes the value of parameter "name".
	//
	//	power: {params: {state: "on"}, effects: {power: "$state"}}
	Effects map[string]any `yaml:"effects,omitempty" json:"effects,omitempty"`
}

// StateRequirement names the state a toggle-style command drives toward.
type StateRequirement struct {
	Field string `yaml:"field" json:"field"`
	Value any    `yaml:"value" json:"value"`
}

// RoleCommand maps a standard role command onto this device.
type RoleCommand struct {
	// Command is the device-specific command name. Empty keeps the standard name.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Params renames standard parameter names to device parameter names.
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`

	// Fixed parameters are merged into every call.
	Fixed map[string]any `yaml:"fixed,omitempty" json:"fixed,omitempty"`

	// RequiresState marks a toggle: the call is skipped when the device
	// already reports Field == Value.
	RequiresState *StateRequirement `yaml:"requires_state,omitempty" json:"requires_state,omitempty"`
}

// Definition is the declarative description of one device.
type Definition struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Protocol string `yaml:"protocol" json:"protocol"`
	RoomID   string `yaml:"room_id,omitempty" json:"room_id,omitempty"`

	// CommandTimeout bounds each command. Zero uses the registry default.
	CommandTimeout time.Duration `yaml:"command_timeout,omitempty" json:"command_timeout,omitempty"`

	// Commands is the capability table. A device with no declared commands
	// passes every command through to its bridge.
	Commands map[string]CommandSpec `yaml:"commands,omitempty" json:"commands,omitempty"`

	// Roles is the role capability table: role -> standard command -> mapping.
	Roles map[string]map[string]RoleCommand `yaml:"roles,omitempty" json:"roles,omitempty"`
}

// DeepCopy returns an independent copy of the definition.
func (d *Definition) DeepCopy() *Definition {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Commands != nil {
		cpy.Commands = make(map[string]CommandSpec, len(d.Commands))
		for name, spec := range d.Commands {
			cpy.Commands[name] = CommandSpec{
				Params:  deepCopyMap(spec.Params),
				Effects: deepCopyMap(spec.Effects),
			}
		}
	}
	if d.Roles != nil {
		cpy.Roles = make(map[string]map[string]RoleCommand, len(d.Roles))
		for role, cmds := range d.Roles {
			inner := make(map[string]RoleCommand, len(cmds))
			for name, rc := range cmds {
				inner[name] = rc.deepCopy()
			}
			cpy.Roles[role] = inner
		}
	}
	return &cpy
}

func (rc RoleCommand) deepCopy() RoleCommand {
	if rc.Params != nil {
		params := make(map[string]string, len(rc.Params))
		for k, v := range rc.Params {
			params[k] = v
		}
		rc.Params = params
	}
	rc.Fixed = deepCopyMap(rc.Fixed)
	if rc.RequiresState != nil {
		req := *rc.RequiresState
		req.Value = deepCopyValue(req.Value)
		rc.RequiresState = &req
	}
	return rc
}

// CommandNames returns the declared command names, sorted.
func (d *Definition) CommandNames() []string {
	names := make([]string, 0, len(d.Commands))
	for name := range d.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// CloneParams returns a deep copy of a parameter map. Exported for callers
// that build command parameters from definitions.
func CloneParams(params map[string]any) map[string]any {
	return deepCopyMap(params)
}
