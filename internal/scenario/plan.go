package scenario

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Phase labels a plan operation.
type Phase string

const (
	PhasePowerOff    Phase = "power_off"
	PhaseReconfigure Phase = "reconfigure"
	PhasePowerOn     Phase = "power_on"
	PhaseConfigure   Phase = "configure"

	// PhaseShutdown tags steps of a full shutdown's complete list.
	PhaseShutdown Phase = "shutdown"

	// PhaseRoleAction tags the single step of a role action.
	PhaseRoleAction Phase = "role_action"
)

// Synthesized commands used when a scenario gives no explicit step.
const (
	CommandPowerOff = "power_off"
	CommandPowerOn  = "power_on"
)

// Operation is a run of consecutive plan steps for one device.
type Operation struct {
	Phase  Phase         `json:"phase"`
	Device string        `json:"device"`
	Steps  []CommandStep `json:"steps"`

	// Synthesized is set when Steps was generated rather than taken from
	// the scenario.
	Synthesized bool `json:"synthesized,omitempty"`
}

// Plan is the ordered operation list for a transition. It is executed
// strictly in order.
type Plan struct {
	Operations []Operation `json:"operations"`
}

// For returns the operations touching deviceID.
func (p Plan) For(deviceID string) []Operation {
	var out []Operation
	for _, op := range p.Operations {
		if op.Device == deviceID {
			out = append(out, op)
		}
	}
	return out
}

// StepCount returns the total number of steps.
func (p Plan) StepCount() int {
	n := 0
	for _, op := range p.Operations {
		n += len(op.Steps)
	}
	return n
}

// DeviceConfig is the non-power configuration a scenario applies to one
// device, derived from its startup steps.
type DeviceConfig struct {
	Input  string
	Output string
	Other  []string
}

// Equal reports whether two configurations are identical.
func (c DeviceConfig) Equal(o DeviceConfig) bool {
	if c.Input != o.Input || c.Output != o.Output || len(c.Other) != len(o.Other) {
		return false
	}
	for i := range c.Other {
		if c.Other[i] != o.Other[i] {
			return false
		}
	}
	return true
}

// ConfigFor derives deviceID's configuration from def's startup sequence.
func ConfigFor(def *Definition, deviceID string) DeviceConfig {
	var cfg DeviceConfig
	if def == nil {
		return cfg
	}
	for _, step := range def.StartupSequence {
		if step.Device != deviceID || IsPowerCommand(step.Command) {
			continue
		}
		switch {
		case IsInputCommand(step.Command):
			cfg.Input = selectorValue(step.Params, "input")
		case IsOutputCommand(step.Command):
			cfg.Output = selectorValue(step.Params, "output")
		default:
			cfg.Other = append(cfg.Other, step.Command+canonicalParams(step.Params))
		}
	}
	return cfg
}

// IsPowerCommand reports whether command switches power.
func IsPowerCommand(command string) bool {
	c := strings.ToLower(command)
	if strings.HasPrefix(c, "power") {
		return true
	}
	switch c {
	case "turn_on", "turn_off", "on", "off":
		return true
	}
	return false
}

// IsInputCommand reports whether command selects an input.
func IsInputCommand(command string) bool {
	switch strings.ToLower(command) {
	case "input", "set_input", "select_input":
		return true
	}
	return false
}

// IsOutputCommand reports whether command selects an output.
func IsOutputCommand(command string) bool {
	switch strings.ToLower(command) {
	case "output", "set_output", "select_output":
		return true
	}
	return false
}

// selectorValue is params[key] when present, otherwise the whole
// parameter set.
func selectorValue(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		return fmt.Sprint(v)
	}
	return canonicalParams(params)
}

// canonicalParams encodes params deterministically (json sorts map keys).
func canonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprint(params)
	}
	return string(data)
}

// BuildPlan computes the operations that move the system from outgoing
// (nil when idle) to incoming.
//
// Power-off comes first: outgoing-only devices, and shared devices when not
// graceful, in the order of the outgoing transition list. The incoming
// startup sequence is then walked in declared order, emitting:
//   - every step of incoming-only devices, and of shared devices when not
//     graceful, tagged power_on or configure
//   - the non-power steps of shared devices whose configuration differs,
//     tagged reconfigure (graceful only)
//
// Shared devices with identical configuration are left alone on a graceful
// switch. A device that declares no power step gets a synthesized power_on
// ahead of its first step.
func BuildPlan(outgoing, incoming *Definition, graceful bool) Plan {
	var plan Plan
	if incoming == nil {
		return plan
	}

	inSet := toSet(incoming.DeviceIDs())
	var outSet map[string]struct{}
	if outgoing != nil {
		outSet = toSet(outgoing.DeviceIDs())
	}

	var removed, shared, added []string
	for id := range outSet {
		if _, ok := inSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id := range inSet {
		if _, ok := outSet[id]; ok {
			shared = append(shared, id)
		} else {
			added = append(added, id)
		}
	}

	powerOff := removed
	powerOn := added
	if !graceful {
		powerOff = append(powerOff, shared...)
		powerOn = append(powerOn, shared...)
	}

	if outgoing != nil {
		for _, id := range orderByAppearance(powerOff, outgoing.ShutdownSequence.Transition) {
			plan.Operations = append(plan.Operations, powerOffOperation(outgoing, id))
		}
	}

	reconfigure := make(map[string]struct{})
	if graceful {
		for _, id := range shared {
			if !ConfigFor(outgoing, id).Equal(ConfigFor(incoming, id)) {
				reconfigure[id] = struct{}{}
			}
		}
	}

	plan.Operations = append(plan.Operations, startupOperations(incoming, toSet(powerOn), reconfigure)...)
	return plan
}

func powerOffOperation(outgoing *Definition, id string) Operation {
	op := Operation{Phase: PhasePowerOff, Device: id}
	for _, s := range outgoing.ShutdownSequence.Transition {
		if s.Device == id {
			op.Steps = append(op.Steps, s.deepCopy())
		}
	}
	if len(op.Steps) == 0 {
		op.Steps = []CommandStep{{Device: id, Command: CommandPowerOff}}
		op.Synthesized = true
	}
	return op
}

func synthesizedPowerOn(id string) Operation {
	return Operation{
		Phase:       PhasePowerOn,
		Device:      id,
		Steps:       []CommandStep{{Device: id, Command: CommandPowerOn}},
		Synthesized: true,
	}
}

// startupOperations walks the startup sequence in declared order.
// Consecutive steps for one device in one phase share an operation, so a
// device whose steps are interleaved with others spans several operations.
// Devices being powered on that never appear in the sequence get a
// synthesized power_on at the end, sorted.
func startupOperations(incoming *Definition, powerOn, reconfigure map[string]struct{}) []Operation {
	hasPower := make(map[string]bool)
	for _, s := range incoming.StartupSequence {
		if IsPowerCommand(s.Command) {
			hasPower[s.Device] = true
		}
	}

	var ops []Operation
	emit := func(phase Phase, s CommandStep) {
		if n := len(ops); n > 0 {
			last := &ops[n-1]
			if last.Device == s.Device && last.Phase == phase && !last.Synthesized {
				last.Steps = append(last.Steps, s.deepCopy())
				return
			}
		}
		ops = append(ops, Operation{Phase: phase, Device: s.Device, Steps: []CommandStep{s.deepCopy()}})
	}

	started := make(map[string]bool)
	for _, s := range incoming.StartupSequence {
		if _, on := powerOn[s.Device]; on {
			if !started[s.Device] && !hasPower[s.Device] {
				ops = append(ops, synthesizedPowerOn(s.Device))
			}
			started[s.Device] = true
			if IsPowerCommand(s.Command) {
				emit(PhasePowerOn, s)
			} else {
				emit(PhaseConfigure, s)
			}
			continue
		}
		if _, re := reconfigure[s.Device]; re && !IsPowerCommand(s.Command) {
			emit(PhaseReconfigure, s)
		}
	}

	var unsequenced []string
	for id := range powerOn {
		if !started[id] {
			unsequenced = append(unsequenced, id)
		}
	}
	sort.Strings(unsequenced)
	for _, id := range unsequenced {
		ops = append(ops, synthesizedPowerOn(id))
	}
	return ops
}

// orderByAppearance sorts ids by first appearance in seq; ids that never
// appear follow, sorted.
func orderByAppearance(ids []string, seq []CommandStep) []string {
	first := make(map[string]int, len(ids))
	for i, s := range seq {
		if _, ok := first[s.Device]; !ok {
			first[s.Device] = i
		}
	}
	out := append([]string(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		pi, iok := first[out[i]]
		pj, jok := first[out[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
