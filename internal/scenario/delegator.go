package scenario

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/nerrad567/avbridge/internal/device"
)

// RoleTable is the per-device role capability table.
// *device.Registry satisfies it.
type RoleTable interface {
	RoleCommand(deviceID, role, command string) (device.RoleCommand, bool)
}

// Resolution is what a role command turns into.
type Resolution struct {
	DeviceID string         `json:"device_id"`
	Command  string         `json:"command"`
	Params   map[string]any `json:"params,omitempty"`

	// Mapped is set when a capability table entry translated the call.
	Mapped bool `json:"mapped"`

	// Skip is set when the device already reports the target state, so a
	// toggle must not be sent.
	Skip   bool   `json:"skip"`
	Reason string `json:"reason,omitempty"`
}

// Delegator resolves (role, command) pairs to device commands.
type Delegator struct {
	devices DeviceRegistry
	roles   RoleTable
}

// NewDelegator creates a delegator. A nil roles table means every call is
// dispatched directly.
func NewDelegator(devices DeviceRegistry, roles RoleTable) *Delegator {
	return &Delegator{devices: devices, roles: roles}
}

// Resolve maps role and command to a concrete device call.
//
// Without a capability entry the role's device receives command and params
// unchanged. With one, parameters are renamed, fixed parameters merged in
// and the device-specific command used. An entry with a state requirement
// reads the device state first and sets Skip when the device is already
// there; a state read failure is returned rather than guessing.
func (d *Delegator) Resolve(ctx context.Context, def *Definition, role, command string, params map[string]any) (Resolution, error) {
	if def == nil {
		return Resolution{}, ErrNoActiveScenario
	}
	deviceID, ok := def.Roles[role]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s in scenario %s", ErrUnknownRole, role, def.ID)
	}

	res := Resolution{DeviceID: deviceID, Command: command, Params: device.CloneParams(params)}
	if d.roles == nil {
		return res, nil
	}
	rc, ok := d.roles.RoleCommand(deviceID, role, command)
	if !ok {
		return res, nil
	}

	res.Mapped = true
	if rc.Command != "" {
		res.Command = rc.Command
	}
	res.Params = translateParams(params, rc)

	if rc.RequiresState == nil {
		return res, nil
	}

	if d.devices == nil {
		return Resolution{}, fmt.Errorf("%w: no device registry", ErrInvalidExecutor)
	}
	h, err := d.devices.GetDevice(deviceID)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %s: %w", ErrUnknownDevice, deviceID, err)
	}
	state, err := h.CurrentState(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("reading state of %s for %s/%s: %w", deviceID, role, command, err)
	}

	field := rc.RequiresState.Field
	if current, found := state.Lookup(strings.Split(field, ".")...); found && sameValue(current, rc.RequiresState.Value) {
		res.Skip = true
		res.Reason = fmt.Sprintf("%s already %v", field, rc.RequiresState.Value)
	}
	return res, nil
}

// translateParams renames standard parameters to device names and merges
// the fixed parameters over them.
func translateParams(params map[string]any, rc device.RoleCommand) map[string]any {
	out := make(map[string]any, len(params)+len(rc.Fixed))
	for k, v := range device.CloneParams(params) {
		if renamed, ok := rc.Params[k]; ok && renamed != "" {
			out[renamed] = v
			continue
		}
		out[k] = v
	}
	for k, v := range device.CloneParams(rc.Fixed) {
		out[k] = v
	}
	return out
}

// sameValue compares a state reading with a configured value, treating all
// numeric types as equal when their values are.
func sameValue(a, b any) bool {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
