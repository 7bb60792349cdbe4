package scenario

import (
	"errors"
	"fmt"
)

// Domain errors for the scenario package.
//
//	if errors.Is(err, scenario.ErrUnknownScenario) {
//	    // handle not found case
//	}
var (
	// ErrUnknownScenario is returned when a scenario ID does not exist.
	ErrUnknownScenario = errors.New("scenario: unknown scenario")

	// ErrUnknownRole is returned when the active scenario does not define a role.
	ErrUnknownRole = errors.New("scenario: unknown role")

	// ErrUnknownDevice is returned when a referenced device cannot be resolved.
	ErrUnknownDevice = errors.New("scenario: unknown device")

	// ErrUnknownPreset is returned when the active scenario has no preset of that name.
	ErrUnknownPreset = errors.New("scenario: unknown preset")

	// ErrNoActiveScenario is returned for role actions while idle.
	ErrNoActiveScenario = errors.New("scenario: no active scenario")

	// ErrBusy is returned when a transition is in flight and the manager
	// rejects rather than queues.
	ErrBusy = errors.New("scenario: busy")

	// ErrInvalidExecutor is returned when an executor is missing its dependencies.
	ErrInvalidExecutor = errors.New("scenario: invalid executor")

	// ErrInvalidManager is returned by NewManager for missing dependencies.
	ErrInvalidManager = errors.New("scenario: invalid manager")

	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("scenario: configuration error")

	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("scenario: persistence error")

	// ErrDuplicateScenario is returned when two sources declare the same ID.
	ErrDuplicateScenario = errors.New("scenario: duplicate scenario id")

	// ErrInvalidSource is returned for unreadable or undecodable sources.
	ErrInvalidSource = errors.New("scenario: invalid source")

	// ErrExecutionNotFound is returned when a history record does not exist.
	ErrExecutionNotFound = errors.New("scenario: execution not found")
)

// ConfigurationError is returned when a scenario that failed validation is
// asked to activate. It carries every collected problem.
type ConfigurationError struct {
	ScenarioID string
	Errors     ValidationErrors
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scenario %s failed validation (%d errors): %s", e.ScenarioID, len(e.Errors), e.Errors.Error())
}

// Is makes errors.Is(err, ErrConfiguration) true.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Unwrap returns the validation errors.
func (e *ConfigurationError) Unwrap() error { return e.Errors }

// PersistenceError reports a StateStore failure. The in-memory transition
// it accompanies has still taken effect.
type PersistenceError struct {
	Op  string // "set", "delete" or "get"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state store %s %s: %v", e.Op, e.Key, e.Err)
}

// Is makes errors.Is(err, ErrPersistence) true.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Unwrap returns the store error.
func (e *PersistenceError) Unwrap() error { return e.Err }
