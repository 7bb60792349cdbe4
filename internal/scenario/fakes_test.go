package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/avbridge/internal/device"
)

var errDeviceOffline = errors.New("device offline")

type call struct {
	Device  string
	Command string
	Params  map[string]any
}

func (c call) String() string { return c.Device + ":" + c.Command }

// fakeDevice is a recording device.Handle with a tiny state model.
type fakeDevice struct {
	id    string
	fleet *fakeDevices

	mu       sync.Mutex
	state    device.State
	fail     map[string]error
	stateErr error

	// block, when set, holds ExecuteCommand until it is closed or ctx ends.
	block chan struct{}
}

func (d *fakeDevice) ID() string { return d.id }

func (d *fakeDevice) ExecuteCommand(ctx context.Context, name string, params map[string]any) error {
	d.fleet.record(call{Device: d.id, Command: name, Params: params})

	d.mu.Lock()
	block := d.block
	failErr := d.fail[name]
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return fmt.Errorf("%s on %s: %w", name, d.id, ctx.Err())
		}
	}
	if failErr != nil {
		return failErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case "power":
		d.state.Power = device.PowerFromBool(params["state"] == "on")
	case "power_on":
		d.state.Power = device.PowerOn
	case "power_off":
		d.state.Power = device.PowerOff
	case "input", "set_input":
		d.state.Input = fmt.Sprint(params["input"])
	case "output", "set_output":
		d.state.Output = fmt.Sprint(params["output"])
	case "play_pause":
		playing, _ := d.state.Extra["playing"].(bool)
		d.setExtra("playing", !playing)
	default:
		for k, v := range params {
			d.setExtra(k, v)
		}
	}
	return nil
}

func (d *fakeDevice) setExtra(k string, v any) {
	if d.state.Extra == nil {
		d.state.Extra = make(map[string]any)
	}
	d.state.Extra[k] = v
}

func (d *fakeDevice) CurrentState(ctx context.Context) (device.State, error) {
	if err := ctx.Err(); err != nil {
		return device.State{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stateErr != nil {
		return device.State{}, d.stateErr
	}
	return d.state.Clone(), nil
}

func (d *fakeDevice) snapshot() device.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clone()
}

func (d *fakeDevice) failOn(command string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail == nil {
		d.fail = make(map[string]error)
	}
	d.fail[command] = err
}

// fakeDevices is a device registry, role table and device lookup that logs
// every command in execution order.
type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	roles   map[string]device.RoleCommand
	log     []call
}

func newFakeDevices(ids ...string) *fakeDevices {
	f := &fakeDevices{
		devices: make(map[string]*fakeDevice),
		roles:   make(map[string]device.RoleCommand),
	}
	for _, id := range ids {
		f.add(id, device.State{Power: device.PowerOff})
	}
	return f
}

func (f *fakeDevices) add(id string, st device.State) *fakeDevice {
	d := &fakeDevice{id: id, fleet: f, state: st}
	f.mu.Lock()
	f.devices[id] = d
	f.mu.Unlock()
	return d
}

func (f *fakeDevices) device(id string) *fakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[id]
}

func (f *fakeDevices) mapRole(deviceID, role, command string, rc device.RoleCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[deviceID+"/"+role+"/"+command] = rc
}

func (f *fakeDevices) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, c)
}

func (f *fakeDevices) calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.log...)
}

// commands returns the log as "device:command" strings.
func (f *fakeDevices) commands() []string {
	var out []string
	for _, c := range f.calls() {
		out = append(out, c.String())
	}
	return out
}

func (f *fakeDevices) callsTo(deviceID string) []call {
	var out []call
	for _, c := range f.calls() {
		if c.Device == deviceID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeDevices) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = nil
}

func (f *fakeDevices) GetDevice(id string) (device.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	return d, nil
}

func (f *fakeDevices) HasDevice(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.devices[id]
	return ok
}

func (f *fakeDevices) SupportsCommand(id, _ string) bool {
	return f.HasDevice(id)
}

func (f *fakeDevices) RoleCommand(deviceID, role, command string) (device.RoleCommand, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.roles[deviceID+"/"+role+"/"+command]
	return rc, ok
}

// failingStore fails every operation with err.
type failingStore struct{ err error }

func (s failingStore) Get(context.Context, string, any) (bool, error) { return false, s.err }
func (s failingStore) Set(context.Context, string, any) error         { return s.err }
func (s failingStore) Delete(context.Context, string) error           { return s.err }

// recordingBroadcaster keeps every event.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	last   map[string]any
}

func (b *recordingBroadcaster) Broadcast(eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	if b.last == nil {
		b.last = make(map[string]any)
	}
	b.last[eventType] = payload
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// memoryHistory is an in-memory HistoryRepository.
type memoryHistory struct {
	mu      sync.Mutex
	records []Execution
}

func (h *memoryHistory) Record(_ context.Context, exec *Execution) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *exec)
	return nil
}

func (h *memoryHistory) Get(_ context.Context, id string) (*Execution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.records {
		if h.records[i].ID == id {
			e := h.records[i]
			return &e, nil
		}
	}
	return nil, ErrExecutionNotFound
}

func (h *memoryHistory) List(_ context.Context, _ string, _ int) ([]Execution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Execution(nil), h.records...), nil
}

// instantAfter replaces the executor's delay timer and logs every wait.
type instantAfter struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (a *instantAfter) after(d time.Duration) <-chan time.Time {
	a.mu.Lock()
	a.delays = append(a.delays, d)
	a.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (a *instantAfter) waits() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Duration(nil), a.delays...)
}

// step builds a CommandStep.
func step(deviceID, command string, params map[string]any) CommandStep {
	return CommandStep{Device: deviceID, Command: command, Params: params}
}

// newCatalog validates defs into a Registry.
func newCatalog(t *testing.T, devices DeviceLookup, defs ...Definition) *Registry {
	t.Helper()
	reg := NewRegistry(nil, devices, nil)
	require.NoError(t, reg.Replace(defs))
	return reg
}
