package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/avbridge/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry owns the device handles built from definitions and keeps their
// state caches fed from bridge reports.
//
// All public methods are thread-safe.
type Registry struct {
	transport      Transport
	defaultTimeout time.Duration
	topics         mqtt.Topics

	mu      sync.RWMutex
	devices map[string]*Device
	logger  Logger
}

// NewRegistry creates an empty registry. Commands are sent through
// transport (nil is allowed for tests and --check mode).
func NewRegistry(transport Transport, defaultTimeout time.Duration) *Registry {
	return &Registry{
		transport:      transport,
		defaultTimeout: defaultTimeout,
		devices:        make(map[string]*Device),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetTopics sets the topic layout used to parse state reports.
func (r *Registry) SetTopics(topics mqtt.Topics) {
	r.topics = topics
}

// Load validates defs and replaces the registry contents. Cached state of
// devices that survive a reload is kept.
func (r *Registry) Load(defs []Definition) error {
	built := make(map[string]*Device, len(defs))
	for i := range defs {
		def := &defs[i]
		if err := ValidateDefinition(def); err != nil {
			return err
		}
		if _, dup := built[def.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDeviceExists, def.ID)
		}
		built[def.ID] = NewDevice(def, r.transport, r.defaultTimeout)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range built {
		if old, ok := r.devices[id]; ok {
			s, _ := old.CurrentState(context.Background()) //nolint:errcheck // Background context never fails
			d.SetState(s)
		}
	}
	r.devices = built

	r.logger.Info("device definitions loaded", "count", len(built))
	return nil
}

// Add registers a prebuilt device, e.g. one with custom handlers.
func (r *Registry) Add(d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[d.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.ID())
	}
	r.devices[d.ID()] = d
	return nil
}

// GetDevice returns the handle for id or ErrDeviceNotFound.
func (r *Registry) GetDevice(id string) (Handle, error) {
	d, err := r.Device(id)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Device returns the concrete device for id or ErrDeviceNotFound.
func (r *Registry) Device(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// HasDevice reports whether id is registered.
func (r *Registry) HasDevice(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// SupportsCommand reports whether device id accepts command.
func (r *Registry) SupportsCommand(id, command string) bool {
	d, err := r.Device(id)
	if err != nil {
		return false
	}
	return d.Supports(command)
}

// RoleCommand looks up the role capability table of a device.
func (r *Registry) RoleCommand(deviceID, role, command string) (RoleCommand, bool) {
	d, err := r.Device(deviceID)
	if err != nil {
		return RoleCommand{}, false
	}
	rc, ok := d.def.Roles[role][command]
	if !ok {
		return RoleCommand{}, false
	}
	return rc.deepCopy(), true
}

// ListDefinitions returns copies of every definition, sorted by ID.
func (r *Registry) ListDefinitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.devices))
	for _, d := range r.devices {
		defs = append(defs, *d.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// HandleStateMessage is an mqtt.MessageHandler for state topics.
// Reports for unknown devices are ignored.
func (r *Registry) HandleStateMessage(topic string, payload []byte) error {
	kind, _, deviceID, ok := r.topics.ParseDeviceTopic(topic)
	if !ok || kind != "state" {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidState, topic)
	}

	d, err := r.Device(deviceID)
	if err != nil {
		r.logger.Debug("state for unknown device ignored", "device_id", deviceID)
		return nil
	}

	update, err := DecodeUpdate(payload)
	if err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}
	d.ApplyUpdate(update)

	r.logger.Debug("device state updated", "device_id", deviceID)
	return nil
}
