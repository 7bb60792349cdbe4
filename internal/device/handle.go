package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCommandTimeout bounds a command when neither the definition nor
// the registry sets a timeout.
const DefaultCommandTimeout = 5 * time.Second

// Handle is what the orchestrator sees of a device.
type Handle interface {
	ID() string
	ExecuteCommand(ctx context.Context, name string, params map[string]any) error
	CurrentState(ctx context.Context) (State, error)
}

// CommandHandler performs one command on a device. Handlers are registered
// per command name when the device is built.
type CommandHandler func(ctx context.Context, d *Device, params map[string]any) error

// Device is the concrete Handle built from a Definition.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Device struct {
	def       *Definition
	transport Transport
	timeout   time.Duration

	handlersMu  sync.RWMutex
	handlers    map[string]CommandHandler
	passthrough bool

	stateMu   sync.RWMutex
	state     State
	updatedAt time.Time
}

// NewDevice builds a device whose declared commands are all sent through
// transport. A definition without commands passes any command through.
func NewDevice(def *Definition, transport Transport, defaultTimeout time.Duration) *Device {
	d := &Device{
		def:         def.DeepCopy(),
		transport:   transport,
		timeout:     def.CommandTimeout,
		handlers:    make(map[string]CommandHandler, len(def.Commands)),
		passthrough: len(def.Commands) == 0,
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}
	if d.timeout <= 0 {
		d.timeout = DefaultCommandTimeout
	}
	for name := range def.Commands {
		d.handlers[name] = sendCommand(name)
	}
	return d
}

// ID returns the device ID.
func (d *Device) ID() string {
	return d.def.ID
}

// Definition returns a copy of the device definition.
func (d *Device) Definition() *Definition {
	return d.def.DeepCopy()
}

// Handle registers or replaces the handler for a command.
func (d *Device) Handle(command string, h CommandHandler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers[command] = h
}

// Supports reports whether the device accepts command.
func (d *Device) Supports(command string) bool {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	_, ok := d.handlers[command]
	return ok || d.passthrough
}

// ExecuteCommand runs the command's handler under the device timeout, then
// applies the command's declared effects to the cached state.
func (d *Device) ExecuteCommand(ctx context.Context, name string, params map[string]any) error {
	d.handlersMu.RLock()
	h, ok := d.handlers[name]
	d.handlersMu.RUnlock()
	if !ok {
		if !d.passthrough {
			return fmt.Errorf("%w: %s on %s", ErrUnknownCommand, name, d.def.ID)
		}
		h = sendCommand(name)
	}

	spec := d.def.Commands[name]
	merged := mergeParams(spec.Params, params)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: handler panic: %v", ErrCommandFailed, r)
			}
		}()
		done <- h(ctx, d, merged)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %s on %s: %w", ErrCommandFailed, name, d.def.ID, ctx.Err())
	}

	return d.applyEffects(spec.Effects, merged)
}

// CurrentState returns a copy of the cached state.
func (d *Device) CurrentState(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.state.Clone(), nil
}

// SetState replaces the cached state.
func (d *Device) SetState(s State) {
	d.stateMu.Lock()
	d.state = s.Clone()
	d.updatedAt = time.Now().UTC()
	d.stateMu.Unlock()
}

// ApplyUpdate merges a partial state report into the cache.
func (d *Device) ApplyUpdate(u Update) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	u.applyTo(&d.state)
	d.updatedAt = time.Now().UTC()
}

// UpdatedAt returns when the cached state last changed.
func (d *Device) UpdatedAt() time.Time {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.updatedAt
}

func (d *Device) applyEffects(effects map[string]any, params map[string]any) error {
	if len(effects) == 0 {
		return nil
	}
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	for field, raw := range effects {
		value := raw
		if ref, ok := raw.(string); ok && strings.HasPrefix(ref, "$") {
			v, found := params[strings.TrimPrefix(ref, "$")]
			if !found {
				continue
			}
			value = v
		}
		if err := d.state.Set(field, value); err != nil {
			return fmt.Errorf("applying effect %s on %s: %w", field, d.def.ID, err)
		}
	}
	d.updatedAt = time.Now().UTC()
	return nil
}

// sendCommand is the default handler: publish the command to the bridge.
func sendCommand(name string) CommandHandler {
	return func(ctx context.Context, d *Device, params map[string]any) error {
		if d.transport == nil {
			return fmt.Errorf("%w: %s on %s", ErrNoTransport, name, d.def.ID)
		}
		cmd := Command{
			ID:         uuid.NewString(),
			DeviceID:   d.def.ID,
			Protocol:   d.def.Protocol,
			Command:    name,
			Parameters: params,
			Source:     CommandSourceScenario,
		}
		if err := d.transport.Send(ctx, cmd); err != nil {
			return fmt.Errorf("%w: %s on %s: %w", ErrCommandFailed, name, d.def.ID, err)
		}
		return nil
	}
}

// mergeParams overlays params on defaults without mutating either.
func mergeParams(defaults, params map[string]any) map[string]any {
	if len(defaults) == 0 && len(params) == 0 {
		return map[string]any{}
	}
	merged := deepCopyMap(defaults)
	if merged == nil {
		merged = make(map[string]any, len(params))
	}
	for k, v := range params {
		merged[k] = deepCopyValue(v)
	}
	return merged
}
