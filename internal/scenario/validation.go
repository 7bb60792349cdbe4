package scenario

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/avbridge/internal/condition"
	"github.com/nerrad567/avbridge/internal/location"
)

// Severity of a validation error. Every check is critical: a scenario with
// any error is never activated.
type Severity string

const SeverityCritical Severity = "critical"

// Validation codes.
const (
	CodeInvalidStructure     = "invalid_structure"
	CodeInvalidCondition     = "invalid_condition"
	CodeUnknownDevice        = "unknown_device"
	CodeUnknownCommand       = "unknown_command"
	CodeRoleGroupMismatch    = "role_group_mismatch"
	CodeMissingGroups        = "missing_groups"
	CodeDuplicateGroup       = "duplicate_group"
	CodeDependencyCycle      = "dependency_cycle"
	CodeDuplicateRoleCommand = "duplicate_role_command"
	CodeUnknownRoom          = "unknown_room"
	CodeRoomMismatch         = "room_mismatch"
	CodeUnknownRole          = "unknown_role"
)

// ValidationError is one problem found in a definition.
type ValidationError struct {
	ScenarioID string   `json:"scenario_id"`
	Code       string   `json:"code"`
	Field      string   `json:"field,omitempty"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one definition.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasCode reports whether any error carries code.
func (v ValidationErrors) HasCode(code string) bool {
	for _, e := range v {
		if e.Code == code {
			return true
		}
	}
	return false
}

// DeviceLookup answers existence questions about devices.
// *device.Registry satisfies it.
type DeviceLookup interface {
	HasDevice(id string) bool
	SupportsCommand(id, command string) bool
}

// RoomLookup resolves rooms. *location.Registry satisfies it.
type RoomLookup interface {
	Get(id string) (*location.Room, error)
	ContainsDevice(roomID, deviceID string) bool
}

type validator struct {
	def  *Definition
	errs ValidationErrors
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		ScenarioID: v.def.ID,
		Code:       code,
		Field:      field,
		Message:    fmt.Sprintf(format, args...),
		Severity:   SeverityCritical,
	})
}

// Validate checks def against the device registry and, when rooms is not
// nil, the room registry. It reports every problem found; an empty result
// means the scenario may be activated.
func Validate(def *Definition, devices DeviceLookup, rooms RoomLookup) ValidationErrors {
	if def == nil {
		return ValidationErrors{{Code: CodeInvalidStructure, Message: "definition is nil", Severity: SeverityCritical}}
	}
	v := &validator{def: def}

	v.checkStructure()
	if devices != nil {
		v.checkDevices(devices)
	}
	v.checkGroups()
	v.checkRoles()
	v.checkCycles()
	v.checkActions()
	if rooms != nil {
		v.checkRoom(rooms)
	}
	return v.errs
}

type namedSequence struct {
	field string
	steps []CommandStep
}

func (v *validator) sequences() []namedSequence {
	return []namedSequence{
		{"startup_sequence", v.def.StartupSequence},
		{"shutdown_sequence.complete", v.def.ShutdownSequence.Complete},
		{"shutdown_sequence.transition", v.def.ShutdownSequence.Transition},
	}
}

func (v *validator) checkStructure() {
	d := v.def
	if strings.TrimSpace(d.ID) == "" {
		v.add(CodeInvalidStructure, "scenario_id", "scenario_id is required")
	}
	if d.ShutdownSequence.Complete == nil {
		v.add(CodeInvalidStructure, "shutdown_sequence.complete", "key is required (may be an empty list)")
	}
	if d.ShutdownSequence.Transition == nil {
		v.add(CodeInvalidStructure, "shutdown_sequence.transition", "key is required (may be an empty list)")
	}

	for _, seq := range v.sequences() {
		for i, step := range seq.steps {
			field := fmt.Sprintf("%s[%d]", seq.field, i)
			if step.Device == "" {
				v.add(CodeInvalidStructure, field+".device", "device is required")
			}
			if step.Command == "" {
				v.add(CodeInvalidStructure, field+".command", "command is required")
			}
			if step.DelayAfterMS < 0 {
				v.add(CodeInvalidStructure, field+".delay_after_ms", "must not be negative, got %d", step.DelayAfterMS)
			}
			if step.Condition != "" {
				if _, err := condition.Compile(step.Condition); err != nil {
					v.add(CodeInvalidCondition, field+".condition", "%v", err)
				}
			}
		}
	}
}

func (v *validator) checkDevices(devices DeviceLookup) {
	for _, id := range sortedKeys(v.def.Devices) {
		if !devices.HasDevice(id) {
			v.add(CodeUnknownDevice, "devices."+id, "device %s does not exist", id)
		}
	}
	for _, role := range v.def.RoleNames() {
		id := v.def.Roles[role]
		if !devices.HasDevice(id) {
			v.add(CodeUnknownDevice, "roles."+role, "role %s maps to unknown device %s", role, id)
		}
	}
	for _, seq := range v.sequences() {
		for i, step := range seq.steps {
			if step.Device == "" {
				continue
			}
			field := fmt.Sprintf("%s[%d]", seq.field, i)
			switch {
			case !devices.HasDevice(step.Device):
				v.add(CodeUnknownDevice, field+".device", "device %s does not exist", step.Device)
			case step.Command != "" && !devices.SupportsCommand(step.Device, step.Command):
				v.add(CodeUnknownCommand, field+".command", "device %s does not support command %s", step.Device, step.Command)
			}
		}
	}
}

func (v *validator) checkGroups() {
	for _, id := range sortedKeys(v.def.Devices) {
		groups := v.def.Devices[id]
		if len(groups) == 0 {
			v.add(CodeMissingGroups, "devices."+id, "device %s declares no groups", id)
			continue
		}
		seen := make(map[string]struct{}, len(groups))
		for _, g := range groups {
			if _, dup := seen[g]; dup {
				v.add(CodeDuplicateGroup, "devices."+id, "group %s listed more than once", g)
				continue
			}
			seen[g] = struct{}{}
		}
	}
}

func (v *validator) checkRoles() {
	for _, role := range v.def.RoleNames() {
		id := v.def.Roles[role]
		groups, ok := v.def.Devices[id]
		if !ok {
			v.add(CodeRoleGroupMismatch, "roles."+role, "role %s maps to %s, which is not a member device", role, id)
			continue
		}
		if !containsString(groups, role) {
			v.add(CodeRoleGroupMismatch, "roles."+role, "device %s does not declare group %s", id, role)
		}
	}
}

// checkCycles walks the member dependency graph: a group naming another
// member device is an edge to it.
func (v *validator) checkCycles() {
	const (
		unvisited = iota
		inProgress
		done
	)
	ids := sortedKeys(v.def.Devices)
	color := make(map[string]int, len(ids))
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = inProgress
		stack = append(stack, id)
		for _, dep := range sortedUnique(v.def.Devices[id]) {
			if _, member := v.def.Devices[dep]; !member {
				continue
			}
			switch color[dep] {
			case inProgress:
				start := indexOf(stack, dep)
				path := append(append([]string{}, stack[start:]...), dep)
				v.add(CodeDependencyCycle, "devices."+dep, "dependency cycle: %s", strings.Join(path, " -> "))
			case unvisited:
				visit(dep)
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = done
	}

	for _, id := range ids {
		if color[id] == unvisited {
			visit(id)
		}
	}
}

func (v *validator) checkActions() {
	type roleCommand struct{ role, command string }
	seenPairs := make(map[roleCommand]int)
	seenNames := make(map[string]int)

	for i, a := range v.def.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if a.Name == "" || a.Role == "" || a.Command == "" {
			v.add(CodeInvalidStructure, field, "name, role and command are required")
			continue
		}
		if prev, dup := seenNames[a.Name]; dup {
			v.add(CodeInvalidStructure, field+".name", "preset %s already declared at actions[%d]", a.Name, prev)
		} else {
			seenNames[a.Name] = i
		}
		if _, ok := v.def.Roles[a.Role]; !ok {
			v.add(CodeUnknownRole, field+".role", "role %s is not defined by the scenario", a.Role)
		}
		key := roleCommand{a.Role, a.Command}
		if prev, dup := seenPairs[key]; dup {
			v.add(CodeDuplicateRoleCommand, field, "role %s command %s duplicates actions[%d]", a.Role, a.Command, prev)
			continue
		}
		seenPairs[key] = i
	}
}

func (v *validator) checkRoom(rooms RoomLookup) {
	roomID := v.def.RoomID
	if roomID == "" {
		return
	}
	if _, err := rooms.Get(roomID); err != nil {
		v.add(CodeUnknownRoom, "room_id", "room %s does not exist", roomID)
		return
	}
	for _, id := range v.def.DeviceIDs() {
		if !rooms.ContainsDevice(roomID, id) {
			v.add(CodeRoomMismatch, v.referenceField(id), "device %s is not in room %s", id, roomID)
		}
	}
}

// referenceField names where def first mentions device id: its devices
// entry, a role, or a sequence step.
func (v *validator) referenceField(id string) string {
	if _, ok := v.def.Devices[id]; ok {
		return "devices." + id
	}
	for _, role := range v.def.RoleNames() {
		if v.def.Roles[role] == id {
			return "roles." + role
		}
	}
	for _, seq := range v.sequences() {
		for i, step := range seq.steps {
			if step.Device == id {
				return fmt.Sprintf("%s[%d].device", seq.field, i)
			}
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedUnique(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func containsString(s []string, want string) bool {
	for _, v := range s {
		if v == want {
			return true
		}
	}
	return false
}

func indexOf(s []string, want string) int {
	for i, v := range s {
		if v == want {
			return i
		}
	}
	return -1
}
