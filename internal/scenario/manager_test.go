package scenario

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/avbridge/internal/device"
	"github.com/nerrad567/avbridge/internal/statestore"
)

type managerFixture struct {
	fleet   *fakeDevices
	catalog *Registry
	store   *statestore.MemoryStore
	history *memoryHistory
	events  *recordingBroadcaster
	manager *Manager
}

func newManagerFixture(t *testing.T, opts Options, defs ...Definition) *managerFixture {
	t.Helper()
	if len(defs) == 0 {
		defs = []Definition{movieScenario(), musicScenario(), tvScenario()}
	}
	f := &managerFixture{
		fleet:   testFleet(),
		store:   statestore.NewMemoryStore(""),
		history: &memoryHistory{},
		events:  &recordingBroadcaster{},
	}
	f.catalog = newCatalog(t, f.fleet, defs...)
	f.manager = f.newManager(t, opts)
	return f
}

func (f *managerFixture) newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(ManagerDeps{
		Scenarios:   f.catalog,
		Devices:     f.fleet,
		Roles:       f.fleet,
		Store:       f.store,
		History:     f.history,
		Broadcaster: f.events,
	}, opts)
	require.NoError(t, err)
	m.executor.after = (&instantAfter{}).after
	return m
}

func (f *managerFixture) switchTo(t *testing.T, id string, graceful bool) *TransitionReport {
	t.Helper()
	report, err := f.manager.SwitchScenario(context.Background(), id, graceful)
	require.NoError(t, err)
	return report
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	_, err := NewManager(ManagerDeps{Devices: testFleet()}, Options{})
	assert.ErrorIs(t, err, ErrInvalidManager)

	_, err = NewManager(ManagerDeps{Scenarios: NewRegistry(nil, nil, nil)}, Options{})
	assert.ErrorIs(t, err, ErrInvalidManager)
}

func TestManager_StartsIdle(t *testing.T) {
	f := newManagerFixture(t, Options{})

	assert.Equal(t, "", f.manager.Active())
	assert.Nil(t, f.manager.State())
}

func TestManager_SwitchFromIdle(t *testing.T) {
	f := newManagerFixture(t, Options{})

	report := f.switchTo(t, "movie", true)

	assert.Equal(t, KindSwitch, report.Kind)
	assert.Equal(t, "", report.From)
	assert.Equal(t, "movie", report.To)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, []string{
		"projector:power_on",
		"amp:power", "amp:input",
		"bluray:power_on",
		"projector:input",
	}, f.fleet.commands(), "steps run in declared startup order")

	assert.Equal(t, "movie", f.manager.Active())
	state := f.manager.State()
	require.NotNil(t, state)
	assert.Equal(t, "movie", state.ScenarioID)
	assert.Len(t, state.Devices, 3)
	assert.Equal(t, device.PowerOn, state.Devices["amp"].Power)
	assert.Equal(t, "hdmi1", state.Devices["amp"].Input)

	var saved State
	found, err := f.store.Get(context.Background(), DefaultStateKey, &saved)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "movie", saved.ScenarioID)

	assert.Equal(t, []string{EventActivated}, f.events.types())
	require.Len(t, f.history.records, 1)
	assert.Equal(t, "movie", f.history.records[0].ToScenarioID)
}

func TestManager_IdempotentReactivation(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.reset()

	report := f.switchTo(t, "movie", false)

	assert.True(t, report.NoOp)
	assert.Equal(t, StatusNoOp, report.Status)
	assert.Empty(t, f.fleet.calls())
	assert.Equal(t, "movie", f.manager.Active())
}

func TestManager_SharedDeviceUntouched(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.reset()

	report := f.switchTo(t, "tv", true)

	assert.Empty(t, f.fleet.callsTo("amp"))
	assert.Equal(t, []string{"bluray:power_off", "projector:power_off", "tv:power_on"}, f.fleet.commands())
	assert.Equal(t, "movie", report.From)
	assert.Equal(t, "tv", f.manager.Active())
}

func TestManager_SharedDeviceReconfigured(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.reset()

	f.switchTo(t, "music", true)

	amp := f.fleet.callsTo("amp")
	require.Len(t, amp, 1)
	assert.Equal(t, "input", amp[0].Command)
	assert.Equal(t, "optical", f.fleet.device("amp").snapshot().Input)
	assert.Equal(t, device.PowerOn, f.fleet.device("amp").snapshot().Power)
}

func TestManager_ForcedCycle(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.reset()

	f.switchTo(t, "tv", false)

	var amp []string
	for _, c := range f.fleet.callsTo("amp") {
		amp = append(amp, c.Command)
	}
	assert.Equal(t, []string{"power_off", "power", "input"}, amp)
}

func TestManager_UnknownScenario(t *testing.T) {
	f := newManagerFixture(t, Options{})

	report, err := f.manager.SwitchScenario(context.Background(), "karaoke", true)

	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrUnknownScenario)
	assert.Equal(t, "", f.manager.Active())
}

func TestManager_InvalidScenarioRefused(t *testing.T) {
	broken := musicScenario()
	broken.ID = "broken"
	broken.Devices["ghost"] = nil
	f := newManagerFixture(t, Options{}, movieScenario(), broken)
	f.switchTo(t, "movie", true)
	f.fleet.reset()

	_, err := f.manager.SwitchScenario(context.Background(), "broken", true)

	require.ErrorIs(t, err, ErrConfiguration)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "broken", cfgErr.ScenarioID)
	assert.True(t, cfgErr.Errors.HasCode(CodeUnknownDevice))
	assert.True(t, cfgErr.Errors.HasCode(CodeMissingGroups))
	assert.Empty(t, f.fleet.calls())
	assert.Equal(t, "movie", f.manager.Active())
}

func TestManager_StepFailuresDoNotAbortSwitch(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.fleet.device("projector").failOn("power_on", errDeviceOffline)

	report := f.switchTo(t, "movie", true)

	assert.Equal(t, StatusPartial, report.Status)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "projector", report.Failures[0].Device)
	assert.Equal(t, PhasePowerOn, report.Failures[0].Phase)
	assert.Equal(t, "movie", f.manager.Active())
	assert.Len(t, f.fleet.calls(), 5)
	assert.Equal(t, 1, f.history.records[0].Failed)
}

func TestManager_RoleActionAfterSwitch(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.switchTo(t, "music", true)
	f.fleet.reset()

	report, err := f.manager.ExecuteRoleAction(context.Background(), "volume", "set_level", map[string]any{"level": 30})

	require.NoError(t, err)
	calls := f.fleet.callsTo("amp")
	require.Len(t, calls, 1)
	assert.Equal(t, "set_level", calls[0].Command)
	assert.Equal(t, map[string]any{"level": 30}, calls[0].Params)
	assert.Len(t, f.fleet.calls(), 1)

	assert.Equal(t, "music", report.ScenarioID)
	assert.Equal(t, "amp", report.Resolution.DeviceID)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, "executed", report.Outcome())

	assert.Equal(t, 30, f.manager.State().Devices["amp"].Extra["level"])
	var saved State
	_, err = f.store.Get(context.Background(), DefaultStateKey, &saved)
	require.NoError(t, err)
	assert.EqualValues(t, 30, saved.Devices["amp"].Extra["level"])
	assert.Contains(t, f.events.types(), EventRoleAction)
}

func TestManager_RoleActionRequiresActiveScenario(t *testing.T) {
	f := newManagerFixture(t, Options{})

	_, err := f.manager.ExecuteRoleAction(context.Background(), "volume", "set_level", nil)

	assert.ErrorIs(t, err, ErrNoActiveScenario)
}

func TestManager_RoleActionUnknownRole(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "music", true)
	f.fleet.reset()

	_, err := f.manager.ExecuteRoleAction(context.Background(), "display", "power_on", nil)

	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.Empty(t, f.fleet.calls())
}

func TestManager_RoleActionDeviceFailureIsReported(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "music", true)
	f.fleet.device("amp").failOn("mute", errDeviceOffline)

	report, err := f.manager.ExecuteRoleAction(context.Background(), "volume", "mute", nil)

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, "failed", report.Outcome())
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Error, errDeviceOffline)
}

func TestManager_RoleActionToggleSkipped(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.mapRole("projector", "display", "power_on", device.RoleCommand{
		Command:       "power_toggle",
		RequiresState: &device.StateRequirement{Field: "power", Value: true},
	})
	f.fleet.reset()

	report, err := f.manager.ExecuteRoleAction(context.Background(), "display", "power_on", nil)

	require.NoError(t, err)
	assert.Empty(t, f.fleet.calls())
	assert.True(t, report.Resolution.Skip)
	assert.Equal(t, "skipped", report.Outcome())
	assert.Equal(t, 1, report.Execution.Skipped)
}

func TestManager_RunPreset(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.reset()

	report, err := f.manager.RunPreset(context.Background(), "loud")

	require.NoError(t, err)
	assert.Equal(t, "set_level", report.Command)
	calls := f.fleet.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "amp:set_level", calls[0].String())
	assert.Equal(t, 80, calls[0].Params["level"])

	_, err = f.manager.RunPreset(context.Background(), "party")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestManager_RunPresetWhileIdle(t *testing.T) {
	f := newManagerFixture(t, Options{})

	_, err := f.manager.RunPreset(context.Background(), "mute")

	assert.ErrorIs(t, err, ErrNoActiveScenario)
}

func TestManager_Shutdown(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.reset()

	report, err := f.manager.Shutdown(context.Background())

	require.NoError(t, err)
	assert.Equal(t, KindShutdown, report.Kind)
	assert.Equal(t, "movie", report.From)
	assert.Equal(t, []string{"projector:power_off", "amp:power", "bluray:power_off"}, f.fleet.commands())
	assert.Equal(t, "", f.manager.Active())
	assert.Nil(t, f.manager.State())

	found, err := f.store.Get(context.Background(), DefaultStateKey, &State{})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{EventActivated, EventShutdown}, f.events.types())

	_, err = f.manager.ExecuteRoleAction(context.Background(), "volume", "mute", nil)
	assert.ErrorIs(t, err, ErrNoActiveScenario)
}

func TestManager_ShutdownWhileIdle(t *testing.T) {
	f := newManagerFixture(t, Options{})

	report, err := f.manager.Shutdown(context.Background())

	require.NoError(t, err)
	assert.True(t, report.NoOp)
	assert.Empty(t, f.fleet.calls())
}

func TestManager_RejectWhenBusy(t *testing.T) {
	f := newManagerFixture(t, Options{RejectWhenBusy: true})
	release := make(chan struct{})
	f.fleet.device("projector").block = release

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.manager.SwitchScenario(context.Background(), "movie", true)
	}()
	require.Eventually(t, func() bool { return len(f.fleet.calls()) > 0 }, time.Second, 5*time.Millisecond)

	_, err := f.manager.SwitchScenario(context.Background(), "music", true)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.manager.ExecuteRoleAction(context.Background(), "volume", "mute", nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
	assert.Equal(t, "movie", f.manager.Active())
}

func TestManager_QueuesWhenBusy(t *testing.T) {
	f := newManagerFixture(t, Options{})
	release := make(chan struct{})
	f.fleet.device("projector").block = release

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.manager.SwitchScenario(context.Background(), "movie", true)
	}()
	require.Eventually(t, func() bool { return len(f.fleet.calls()) > 0 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.manager.SwitchScenario(ctx, "music", true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	queued := make(chan error, 1)
	go func() {
		_, err := f.manager.SwitchScenario(context.Background(), "music", true)
		queued <- err
	}()

	close(release)
	wg.Wait()
	require.NoError(t, <-queued)
	assert.Equal(t, "music", f.manager.Active())
}

func TestManager_CancellationKeepsPreviousScenario(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	f.fleet.device("streamer").block = make(chan struct{})
	f.fleet.reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var (
		report *TransitionReport
		err    error
	)
	go func() {
		defer close(done)
		report, err = f.manager.SwitchScenario(ctx, "music", true)
	}()
	require.Eventually(t, func() bool { return len(f.fleet.callsTo("streamer")) > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, StatusCancelled, report.Status)
	assert.True(t, report.Execution.Cancelled)
	assert.Equal(t, "movie", f.manager.Active())
	assert.Equal(t, "movie", f.manager.State().ScenarioID)

	var saved State
	_, err = f.store.Get(context.Background(), DefaultStateKey, &saved)
	require.NoError(t, err)
	assert.Equal(t, "movie", saved.ScenarioID)
	assert.Equal(t, []string{EventActivated}, f.events.types())
	assert.Equal(t, StatusCancelled, f.history.records[len(f.history.records)-1].Status)
}

func TestManager_PersistenceFailureStillSwitches(t *testing.T) {
	f := newManagerFixture(t, Options{})
	storeErr := errors.New("disk full")
	m, err := NewManager(ManagerDeps{
		Scenarios: f.catalog,
		Devices:   f.fleet,
		Store:     failingStore{err: storeErr},
	}, Options{})
	require.NoError(t, err)

	report, err := m.SwitchScenario(context.Background(), "movie", true)

	require.NotNil(t, report)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, storeErr)
	var pErr *PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "set", pErr.Op)
	assert.Equal(t, DefaultStateKey, pErr.Key)
	assert.Equal(t, "movie", m.Active())
}

func TestManager_RoundTripPersistence(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)
	before := f.manager.State()

	restarted := f.newManager(t, Options{})
	f.fleet.reset()
	require.NoError(t, restarted.Restore(context.Background()))

	assert.Equal(t, "movie", restarted.Active())
	after := restarted.State()
	require.NotNil(t, after)
	assert.Equal(t, before.ScenarioID, after.ScenarioID)
	assert.Equal(t, before.Devices, after.Devices)
	assert.Empty(t, f.fleet.calls(), "restore sends no commands")
}

func TestManager_RestoreIgnoresStaleState(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "unknown scenario", value: State{ScenarioID: "karaoke"}},
		{name: "empty scenario id", value: State{}},
		{name: "undecodable", value: "not a state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t, Options{})
			require.NoError(t, f.store.Set(context.Background(), DefaultStateKey, tt.value))

			require.NoError(t, f.manager.Restore(context.Background()))
			assert.Equal(t, "", f.manager.Active())
		})
	}
}

func TestManager_RestoreIgnoresInvalidScenario(t *testing.T) {
	broken := musicScenario()
	broken.Devices["ghost"] = []string{"source"}
	f := newManagerFixture(t, Options{}, broken)
	require.NoError(t, f.store.Set(context.Background(), DefaultStateKey, State{ScenarioID: "music"}))

	require.NoError(t, f.manager.Restore(context.Background()))

	assert.Equal(t, "", f.manager.Active())
}

func TestManager_RestoreNothingSaved(t *testing.T) {
	f := newManagerFixture(t, Options{})

	require.NoError(t, f.manager.Restore(context.Background()))

	assert.Equal(t, "", f.manager.Active())
}

func TestManager_RestoreStoreFailure(t *testing.T) {
	f := newManagerFixture(t, Options{})
	m, err := NewManager(ManagerDeps{
		Scenarios: f.catalog,
		Devices:   f.fleet,
		Store:     failingStore{err: errors.New("connection refused")},
	}, Options{})
	require.NoError(t, err)

	err = m.Restore(context.Background())

	var pErr *PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "get", pErr.Op)
}

func TestManager_CustomStateKey(t *testing.T) {
	f := newManagerFixture(t, Options{StateKey: "lounge:scenario"})
	f.switchTo(t, "music", true)

	found, err := f.store.Get(context.Background(), "lounge:scenario", &State{})
	require.NoError(t, err)
	assert.True(t, found)
	found, err = f.store.Get(context.Background(), DefaultStateKey, &State{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_ListScenarios(t *testing.T) {
	broken := tvScenario()
	broken.Roles["display"] = "amp"
	f := newManagerFixture(t, Options{}, movieScenario(), musicScenario(), broken)
	f.switchTo(t, "music", true)

	list := f.manager.ListScenarios(context.Background())

	require.Len(t, list, 3)
	assert.Equal(t, []string{"movie", "music", "tv"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, []string{"mute", "loud"}, list[0].Presets)
	assert.Equal(t, []string{"display", "volume"}, list[0].Roles)
	assert.True(t, list[1].Active)
	assert.False(t, list[0].Active)
	assert.False(t, list[2].Valid)
	assert.Equal(t, 1, list[2].ErrorCount)
}

func TestManager_GetDefinitionReturnsCopy(t *testing.T) {
	f := newManagerFixture(t, Options{})

	def, err := f.manager.GetDefinition(context.Background(), "movie")
	require.NoError(t, err)
	def.Roles["volume"] = "tv"

	again, err := f.manager.GetDefinition(context.Background(), "movie")
	require.NoError(t, err)
	assert.Equal(t, "amp", again.Roles["volume"])

	_, err = f.manager.GetDefinition(context.Background(), "karaoke")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestManager_StateIsACopy(t *testing.T) {
	f := newManagerFixture(t, Options{})
	f.switchTo(t, "movie", true)

	s := f.manager.State()
	s.ScenarioID = "changed"
	delete(s.Devices, "amp")

	assert.Equal(t, "movie", f.manager.State().ScenarioID)
	assert.Contains(t, f.manager.State().Devices, "amp")
}

type recordingRecorder struct {
	mu          sync.Mutex
	transitions []*TransitionReport
	actions     []*ActionReport
}

func (r *recordingRecorder) RecordTransition(rep *TransitionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, rep)
}

func (r *recordingRecorder) RecordRoleAction(rep *ActionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, rep)
}

func TestManager_RecordsTelemetryAndHistory(t *testing.T) {
	f := newManagerFixture(t, Options{})
	rec := &recordingRecorder{}
	m, err := NewManager(ManagerDeps{
		Scenarios: f.catalog,
		Devices:   f.fleet,
		History:   f.history,
		Recorder:  rec,
	}, Options{})
	require.NoError(t, err)

	_, err = m.SwitchScenario(context.Background(), "movie", true)
	require.NoError(t, err)
	_, err = m.ExecuteRoleAction(context.Background(), "volume", "mute", nil)
	require.NoError(t, err)
	_, err = m.Shutdown(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.transitions, 2)
	require.Len(t, rec.actions, 1)
	assert.Equal(t, KindShutdown, rec.transitions[1].Kind)

	records, err := m.History(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{KindSwitch, KindRoleAction, KindShutdown},
		[]string{records[0].Kind, records[1].Kind, records[2].Kind})
	assert.Equal(t, "volume", records[1].Role)
}
