package scenario

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used throughout the package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source supplies scenario definitions. *Loader satisfies it.
type Source interface {
	LoadAll() ([]Definition, error)
}

// Registry caches scenario definitions and their validation results.
//
// Invalid scenarios stay listable so operators can see what is wrong, but
// Validation reports their errors and the manager refuses to activate them.
//
// All public methods are thread-safe.
type Registry struct {
	source  Source
	devices DeviceLookup
	rooms   RoomLookup

	mu         sync.RWMutex
	cache      map[string]*Definition
	validation map[string]ValidationErrors
	logger     Logger
}

// NewRegistry creates a registry over source, validating against devices
// and rooms (rooms may be nil).
func NewRegistry(source Source, devices DeviceLookup, rooms RoomLookup) *Registry {
	return &Registry{
		source:     source,
		devices:    devices,
		rooms:      rooms,
		cache:      make(map[string]*Definition),
		validation: make(map[string]ValidationErrors),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load reads and validates every definition and replaces the cache.
// A duplicate scenario ID is a load error and leaves the cache unchanged.
func (r *Registry) Load(_ context.Context) error {
	defs, err := r.source.LoadAll()
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}
	return r.Replace(defs)
}

// Reload is Load under the name callers use after editing sources.
func (r *Registry) Reload(ctx context.Context) error {
	return r.Load(ctx)
}

// Replace validates defs and swaps them in.
func (r *Registry) Replace(defs []Definition) error {
	cache := make(map[string]*Definition, len(defs))
	validation := make(map[string]ValidationErrors)
	sources := make(map[string]string, len(defs))

	for i := range defs {
		def := &defs[i]
		if prev, dup := sources[def.ID]; dup {
			return fmt.Errorf("%w: %q in %s and %s", ErrDuplicateScenario, def.ID, prev, def.Source)
		}
		sources[def.ID] = def.Source

		if errs := Validate(def, r.devices, r.rooms); len(errs) > 0 {
			validation[def.ID] = errs
			for _, e := range errs {
				r.logger.Error("scenario validation failed",
					"scenario_id", def.ID,
					"code", e.Code,
					"field", e.Field,
					"message", e.Message,
				)
			}
		}
		cache[def.ID] = def.DeepCopy()
	}

	r.mu.Lock()
	r.cache = cache
	r.validation = validation
	r.mu.Unlock()

	r.logger.Info("scenarios loaded", "count", len(cache), "invalid", len(validation))
	return nil
}

// Get returns a copy of the definition or ErrUnknownScenario.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	def, ok := r.cache[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, id)
	}
	return def.DeepCopy(), nil
}

// List returns copies of every definition, sorted by ID.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.cache))
	for _, def := range r.cache {
		out = append(out, *def.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validation returns the errors recorded for id at load time.
func (r *Registry) Validation(id string) ValidationErrors {
	r.mu.RLock()
	defer r.mu.RUnlock()
	errs := r.validation[id]
	if errs == nil {
		return nil
	}
	return append(ValidationErrors(nil), errs...)
}

// AllValidation returns every scenario's errors keyed by ID.
func (r *Registry) AllValidation() map[string]ValidationErrors {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ValidationErrors, len(r.validation))
	for id, errs := range r.validation {
		out[id] = append(ValidationErrors(nil), errs...)
	}
	return out
}

// Count returns the number of cached scenarios.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
