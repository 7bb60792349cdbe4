package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/avbridge/internal/device"
	"github.com/nerrad567/avbridge/internal/statestore"
)

// DefaultStateKey is where the active scenario snapshot is persisted.
const DefaultStateKey = "scenario:last"

// Catalog supplies validated scenario definitions. *Registry satisfies it.
type Catalog interface {
	Get(id string) (*Definition, error)
	List() []Definition
	Validation(id string) ValidationErrors
}

// StateStore persists the active scenario snapshot.
// Every statestore.Store satisfies it.
type StateStore interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// ManagerDeps are the manager's collaborators. Scenarios and Devices are
// required; the rest are optional.
type ManagerDeps struct {
	Scenarios  Catalog
	Devices    DeviceRegistry
	Roles      RoleTable
	Conditions ConditionEvaluator

	Store       StateStore
	History     HistoryRepository
	Broadcaster Broadcaster
	Recorder    Recorder
	Logger      Logger
}

// Options tune the manager.
type Options struct {
	// RejectWhenBusy fails a request with ErrBusy while another is in
	// flight. The default queues it.
	RejectWhenBusy bool

	// StateKey overrides DefaultStateKey.
	StateKey string
}

// Manager owns the active scenario and performs transitions and role
// actions against it.
//
// The manager is Idle until a switch succeeds, then Active until a full
// shutdown. Switches, shutdowns, role actions and restores are serialised
// by a single gate; a transition that is cancelled part-way leaves the
// previous scenario active.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	scenarios   Catalog
	devices     DeviceRegistry
	executor    *Executor
	delegator   *Delegator
	store       StateStore
	history     HistoryRepository
	broadcaster Broadcaster
	recorder    Recorder
	logger      Logger
	opts        Options

	gate *semaphore.Weighted

	mu     sync.RWMutex
	active *Definition
	state  *State
}

// NewManager creates an idle manager.
func NewManager(deps ManagerDeps, opts Options) (*Manager, error) {
	if deps.Scenarios == nil {
		return nil, fmt.Errorf("%w: scenario catalog is required", ErrInvalidManager)
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("%w: device registry is required", ErrInvalidManager)
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if opts.StateKey == "" {
		opts.StateKey = DefaultStateKey
	}

	executor := NewExecutor(deps.Devices, deps.Conditions)
	executor.SetLogger(deps.Logger)

	return &Manager{
		scenarios:   deps.Scenarios,
		devices:     deps.Devices,
		executor:    executor,
		delegator:   NewDelegator(deps.Devices, deps.Roles),
		store:       deps.Store,
		history:     deps.History,
		broadcaster: deps.Broadcaster,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		opts:        opts,
		gate:        semaphore.NewWeighted(1),
	}, nil
}

// acquire takes the gate, or fails with ErrBusy in reject mode.
func (m *Manager) acquire(ctx context.Context) error {
	if m.opts.RejectWhenBusy {
		if !m.gate.TryAcquire(1) {
			return ErrBusy
		}
		return nil
	}
	return m.gate.Acquire(ctx, 1)
}

func (m *Manager) release() {
	m.gate.Release(1)
}

// Active returns the active scenario ID, or "" when idle.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.ID
}

// State returns a copy of the active scenario state, or nil when idle.
func (m *Manager) State() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.DeepCopy()
}

func (m *Manager) activeDefinition() *Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.DeepCopy()
}

// ListScenarios returns a summary of every known scenario.
func (m *Manager) ListScenarios(_ context.Context) []Summary {
	active := m.Active()
	defs := m.scenarios.List()
	out := make([]Summary, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		errs := m.scenarios.Validation(def.ID)
		s := Summary{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			RoomID:      def.RoomID,
			Roles:       def.RoleNames(),
			Valid:       len(errs) == 0,
			ErrorCount:  len(errs),
			Active:      def.ID == active,
		}
		for _, p := range def.Actions {
			s.Presets = append(s.Presets, p.Name)
		}
		out = append(out, s)
	}
	return out
}

// GetDefinition returns a copy of one scenario definition.
func (m *Manager) GetDefinition(_ context.Context, id string) (*Definition, error) {
	return m.scenarios.Get(id)
}

// SwitchScenario makes id the active scenario.
//
// Switching to the active scenario is a successful no-op. Otherwise a plan
// is built from the device difference between the two scenarios and run
// step by step. Step failures do not stop the switch; they are listed in
// the report's Failures.
//
// Returns:
//   - *TransitionReport: always non-nil unless the request was refused
//   - error: ErrUnknownScenario or *ConfigurationError when refused,
//     ErrBusy in reject mode, the context error when cancelled (the
//     previous scenario stays active), or *PersistenceError when the
//     switch took effect but the snapshot could not be stored
func (m *Manager) SwitchScenario(ctx context.Context, id string, graceful bool) (*TransitionReport, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	incoming, err := m.scenarios.Get(id)
	if err != nil {
		return nil, err
	}
	if errs := m.scenarios.Validation(id); len(errs) > 0 {
		return nil, &ConfigurationError{ScenarioID: id, Errors: errs}
	}

	outgoing := m.activeDefinition()
	report := &TransitionReport{
		ID:        uuid.NewString(),
		Kind:      KindSwitch,
		To:        id,
		Graceful:  graceful,
		StartedAt: time.Now().UTC(),
	}
	if outgoing != nil {
		report.From = outgoing.ID
	}

	if outgoing != nil && outgoing.ID == incoming.ID {
		report.NoOp = true
		report.finish(&ExecutionReport{})
		m.logger.Debug("scenario already active", "scenario_id", id)
		return report, nil
	}

	report.Plan = BuildPlan(outgoing, incoming, graceful)
	m.logger.Info("switching scenario",
		"from", report.From,
		"to", id,
		"graceful", graceful,
		"operations", len(report.Plan.Operations),
	)

	exec, runErr := m.runPlan(ctx, report.Plan)
	report.finish(exec)

	if runErr != nil {
		m.logger.Warn("scenario switch cancelled", "from", report.From, "to", id, "error", runErr)
		m.recordHistory(ctx, ExecutionFromTransition(report))
		return report, runErr
	}

	state := m.snapshot(ctx, incoming)
	m.mu.Lock()
	m.active = incoming
	m.state = state
	m.mu.Unlock()

	persistErr := m.persist(ctx, state)

	m.logger.Info("scenario activated",
		"scenario_id", id,
		"status", report.Status,
		"executed", exec.Executed,
		"skipped", exec.Skipped,
		"failed", exec.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	m.broadcast(EventActivated, ActivatedEvent{
		ScenarioID: id,
		PreviousID: report.From,
		Graceful:   graceful,
		Status:     report.Status,
		Failed:     exec.Failed,
	})
	m.recordHistory(ctx, ExecutionFromTransition(report))
	if m.recorder != nil {
		m.recorder.RecordTransition(report)
	}

	if persistErr != nil {
		return report, persistErr
	}
	return report, nil
}

// runPlan executes every operation in order. On cancellation the steps of
// the remaining operations are reported as cancelled.
func (m *Manager) runPlan(ctx context.Context, plan Plan) (*ExecutionReport, error) {
	exec := &ExecutionReport{}
	for i, op := range plan.Operations {
		r, err := m.executor.Run(ctx, op.Steps)
		exec.merge(r, op.Phase)
		if err != nil {
			for _, rest := range plan.Operations[i+1:] {
				for _, s := range rest.Steps {
					exec.add(StepResult{
						Phase:   rest.Phase,
						Device:  s.Device,
						Command: s.Command,
						Status:  StepCancelled,
						Reason:  "sequence cancelled",
					})
				}
			}
			exec.Cancelled = true
			return exec, err
		}
	}
	return exec, nil
}

// Shutdown runs the active scenario's complete shutdown list and returns
// to Idle. Shutting down while idle is a no-op.
func (m *Manager) Shutdown(ctx context.Context) (*TransitionReport, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	outgoing := m.activeDefinition()
	report := &TransitionReport{
		ID:        uuid.NewString(),
		Kind:      KindShutdown,
		StartedAt: time.Now().UTC(),
	}
	if outgoing == nil {
		report.NoOp = true
		report.finish(&ExecutionReport{})
		return report, nil
	}
	report.From = outgoing.ID

	m.logger.Info("shutting down scenario", "scenario_id", outgoing.ID)

	r, runErr := m.executor.Run(ctx, outgoing.ShutdownSequence.Complete)
	exec := &ExecutionReport{}
	exec.merge(r, PhaseShutdown)
	report.finish(exec)

	if runErr != nil {
		m.logger.Warn("scenario shutdown cancelled", "scenario_id", outgoing.ID, "error", runErr)
		m.recordHistory(ctx, ExecutionFromTransition(report))
		return report, runErr
	}

	m.mu.Lock()
	m.active = nil
	m.state = nil
	m.mu.Unlock()

	var persistErr error
	if m.store != nil {
		if err := m.store.Delete(ctx, m.opts.StateKey); err != nil {
			persistErr = &PersistenceError{Op: "delete", Key: m.opts.StateKey, Err: err}
			m.logger.Error("deleting scenario state failed", "key", m.opts.StateKey, "error", err)
		}
	}

	m.logger.Info("scenario shut down",
		"scenario_id", outgoing.ID,
		"status", report.Status,
		"failed", exec.Failed,
	)
	m.broadcast(EventShutdown, ShutdownEvent{
		ScenarioID: outgoing.ID,
		Status:     report.Status,
		Failed:     exec.Failed,
	})
	m.recordHistory(ctx, ExecutionFromTransition(report))
	if m.recorder != nil {
		m.recorder.RecordTransition(report)
	}

	if persistErr != nil {
		return report, persistErr
	}
	return report, nil
}

// ExecuteRoleAction sends command to the device bound to role in the
// active scenario.
//
// A device failure is reported in the ActionReport, not as an error.
// Errors are ErrNoActiveScenario, ErrUnknownRole, a state read failure for
// toggle commands, ErrBusy, the context error, or *PersistenceError.
func (m *Manager) ExecuteRoleAction(ctx context.Context, role, command string, params map[string]any) (*ActionReport, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	def := m.activeDefinition()
	if def == nil {
		return nil, ErrNoActiveScenario
	}

	report := &ActionReport{
		ID:         uuid.NewString(),
		ScenarioID: def.ID,
		Role:       role,
		Command:    command,
		StartedAt:  time.Now().UTC(),
	}

	res, err := m.delegator.Resolve(ctx, def, role, command, params)
	if err != nil {
		return nil, err
	}
	report.Resolution = res

	var (
		exec   *ExecutionReport
		runErr error
	)
	if res.Skip {
		exec = &ExecutionReport{}
		exec.add(StepResult{
			Phase:   PhaseRoleAction,
			Device:  res.DeviceID,
			Command: res.Command,
			Status:  StepSkipped,
			Reason:  res.Reason,
		})
	} else {
		var r *ExecutionReport
		r, runErr = m.executor.Run(ctx, []CommandStep{{Device: res.DeviceID, Command: res.Command, Params: res.Params}})
		exec = &ExecutionReport{}
		exec.merge(r, PhaseRoleAction)
	}
	report.finish(exec)

	if runErr != nil {
		m.recordHistory(ctx, ExecutionFromAction(report))
		return report, runErr
	}

	m.logger.Info("role action",
		"scenario_id", def.ID,
		"role", role,
		"command", command,
		"device_id", res.DeviceID,
		"device_command", res.Command,
		"outcome", report.Outcome(),
	)

	var persistErr error
	if !res.Skip {
		persistErr = m.refreshDevice(ctx, def.ID, res.DeviceID)
	}

	m.broadcast(EventRoleAction, RoleActionEvent{
		ScenarioID: def.ID,
		Role:       role,
		Command:    command,
		DeviceID:   res.DeviceID,
		Outcome:    report.Outcome(),
	})
	m.recordHistory(ctx, ExecutionFromAction(report))
	if m.recorder != nil {
		m.recorder.RecordRoleAction(report)
	}

	if persistErr != nil {
		return report, persistErr
	}
	return report, nil
}

// RunPreset runs one of the active scenario's action presets.
func (m *Manager) RunPreset(ctx context.Context, name string) (*ActionReport, error) {
	def := m.activeDefinition()
	if def == nil {
		return nil, ErrNoActiveScenario
	}
	p, ok := def.Preset(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s in scenario %s", ErrUnknownPreset, name, def.ID)
	}
	return m.ExecuteRoleAction(ctx, p.Role, p.Command, p.Params)
}

// Restore re-adopts the persisted scenario without sending any command.
//
// A missing, empty, undecodable or stale snapshot (unknown or invalid
// scenario) leaves the manager Idle and is not an error. Only a store
// read failure is returned, as *PersistenceError.
func (m *Manager) Restore(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	if m.store == nil {
		return nil
	}

	var saved State
	found, err := m.store.Get(ctx, m.opts.StateKey, &saved)
	if err != nil {
		if errors.Is(err, statestore.ErrDecode) {
			m.logger.Warn("ignoring undecodable scenario state", "key", m.opts.StateKey, "error", err)
			return nil
		}
		return &PersistenceError{Op: "get", Key: m.opts.StateKey, Err: err}
	}
	if !found || saved.ScenarioID == "" {
		m.logger.Info("no scenario state to restore")
		return nil
	}

	def, err := m.scenarios.Get(saved.ScenarioID)
	if err != nil {
		m.logger.Warn("ignoring scenario state for unknown scenario", "scenario_id", saved.ScenarioID)
		return nil
	}
	if errs := m.scenarios.Validation(saved.ScenarioID); len(errs) > 0 {
		m.logger.Warn("ignoring scenario state for invalid scenario",
			"scenario_id", saved.ScenarioID,
			"errors", len(errs),
		)
		return nil
	}

	if saved.Devices == nil {
		saved.Devices = make(map[string]device.State)
	}

	m.mu.Lock()
	m.active = def
	m.state = saved.DeepCopy()
	m.mu.Unlock()

	m.logger.Info("scenario restored", "scenario_id", def.ID, "devices", len(saved.Devices))
	return nil
}

// History returns recent execution records for scenarioID ("" for all).
func (m *Manager) History(ctx context.Context, scenarioID string, limit int) ([]Execution, error) {
	if m.history == nil {
		return nil, nil
	}
	return m.history.List(ctx, scenarioID, limit)
}

// snapshot reads the current state of every device def references.
// Devices that cannot be read are left out.
func (m *Manager) snapshot(ctx context.Context, def *Definition) *State {
	state := &State{
		ScenarioID: def.ID,
		Devices:    make(map[string]device.State),
		UpdatedAt:  time.Now().UTC(),
	}
	for _, id := range def.DeviceIDs() {
		h, err := m.devices.GetDevice(id)
		if err != nil {
			m.logger.Warn("device missing from snapshot", "scenario_id", def.ID, "device_id", id, "error", err)
			continue
		}
		ds, err := h.CurrentState(ctx)
		if err != nil {
			m.logger.Warn("device state unavailable for snapshot", "scenario_id", def.ID, "device_id", id, "error", err)
			continue
		}
		state.Devices[id] = ds
	}
	return state
}

// refreshDevice re-reads one device into the active state and persists it.
func (m *Manager) refreshDevice(ctx context.Context, scenarioID, deviceID string) error {
	h, err := m.devices.GetDevice(deviceID)
	if err != nil {
		m.logger.Warn("device missing after role action", "device_id", deviceID, "error", err)
		return nil
	}
	ds, err := h.CurrentState(ctx)
	if err != nil {
		m.logger.Warn("device state unavailable after role action", "device_id", deviceID, "error", err)
		return nil
	}

	m.mu.Lock()
	if m.state == nil || m.state.ScenarioID != scenarioID {
		m.mu.Unlock()
		return nil
	}
	m.state.Devices[deviceID] = ds
	m.state.UpdatedAt = time.Now().UTC()
	snapshot := m.state.DeepCopy()
	m.mu.Unlock()

	return m.persist(ctx, snapshot)
}

func (m *Manager) persist(ctx context.Context, state *State) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Set(ctx, m.opts.StateKey, state); err != nil {
		m.logger.Error("persisting scenario state failed", "key", m.opts.StateKey, "scenario_id", state.ScenarioID, "error", err)
		return &PersistenceError{Op: "set", Key: m.opts.StateKey, Err: err}
	}
	return nil
}

func (m *Manager) broadcast(eventType string, payload any) {
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(eventType, payload)
	}
}

// recordHistory stores exec. Failures are logged; a cancelled request
// is still recorded.
func (m *Manager) recordHistory(ctx context.Context, exec *Execution) {
	if m.history == nil {
		return
	}
	if err := m.history.Record(context.WithoutCancel(ctx), exec); err != nil {
		m.logger.Warn("recording scenario execution failed", "execution_id", exec.ID, "kind", exec.Kind, "error", err)
	}
}
