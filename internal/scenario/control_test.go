package scenario

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingTarget holds every switch until release is closed.
type blockingTarget struct {
	recordingTarget
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTarget) SwitchScenario(ctx context.Context, id string, graceful bool) (*TransitionReport, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.recordingTarget.SwitchScenario(ctx, id, graceful)
}

type recordingTarget struct {
	switches []bool
	calls    []string
	err      error
}

func (r *recordingTarget) SwitchScenario(_ context.Context, id string, graceful bool) (*TransitionReport, error) {
	r.calls = append(r.calls, "switch:"+id)
	r.switches = append(r.switches, graceful)
	return &TransitionReport{Status: StatusCompleted}, r.err
}

func (r *recordingTarget) Shutdown(context.Context) (*TransitionReport, error) {
	r.calls = append(r.calls, "shutdown")
	return &TransitionReport{Status: StatusCompleted}, r.err
}

func (r *recordingTarget) ExecuteRoleAction(_ context.Context, role, command string, _ map[string]any) (*ActionReport, error) {
	r.calls = append(r.calls, "role:"+role+":"+command)
	return &ActionReport{Status: StatusCompleted}, r.err
}

func (r *recordingTarget) RunPreset(_ context.Context, name string) (*ActionReport, error) {
	r.calls = append(r.calls, "preset:"+name)
	return &ActionReport{Status: StatusCompleted}, r.err
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"switch", `{"action":"switch","scenario_id":"movie"}`, false},
		{"switch without id", `{"action":"switch"}`, true},
		{"shutdown", `{"action":"shutdown"}`, false},
		{"role", `{"action":"role","role":"volume","command":"mute"}`, false},
		{"role without command", `{"action":"role","role":"volume"}`, true},
		{"preset", `{"action":"preset","preset":"loud"}`, false},
		{"preset without name", `{"action":"preset"}`, true},
		{"unknown action", `{"action":"reboot"}`, true},
		{"unknown field", `{"action":"shutdown","force":true}`, true},
		{"not json", `shutdown`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestController_Do_DispatchesActions(t *testing.T) {
	target := &recordingTarget{}
	c := NewController(context.Background(), target, true)
	ctx := context.Background()

	notGraceful := false
	require.NoError(t, c.Do(ctx, Request{Action: ActionSwitch, ScenarioID: "movie"}))
	require.NoError(t, c.Do(ctx, Request{Action: ActionSwitch, ScenarioID: "music", Graceful: &notGraceful}))
	require.NoError(t, c.Do(ctx, Request{Action: ActionRole, Role: "volume", Command: "mute"}))
	require.NoError(t, c.Do(ctx, Request{Action: ActionPreset, Preset: "loud"}))
	require.NoError(t, c.Do(ctx, Request{Action: ActionShutdown}))

	assert.Equal(t, []string{
		"switch:movie",
		"switch:music",
		"role:volume:mute",
		"preset:loud",
		"shutdown",
	}, target.calls)
	assert.Equal(t, []bool{true, false}, target.switches, "default graceful applies only when unset")
}

func TestController_Do_ReturnsTargetError(t *testing.T) {
	target := &recordingTarget{err: ErrBusy}
	c := NewController(context.Background(), target, true)

	err := c.Do(context.Background(), Request{Action: ActionShutdown})
	assert.ErrorIs(t, err, ErrBusy)

	err = c.Do(context.Background(), Request{Action: "reboot"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestController_HandleMessage_DrivesManager(t *testing.T) {
	f := newManagerFixture(t, Options{})
	c := NewController(context.Background(), f.manager, true)

	require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"switch","scenario_id":"movie"}`)))
	c.Wait()
	assert.Equal(t, "movie", f.manager.Active())

	require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"preset","preset":"loud"}`)))
	c.Wait()
	assert.Contains(t, f.fleet.commands(), "amp:set_level")

	require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"shutdown"}`)))
	c.Wait()
	assert.Equal(t, "", f.manager.Active())
}

func TestController_HandleMessage_RejectsBadPayload(t *testing.T) {
	target := &recordingTarget{}
	c := NewController(context.Background(), target, true)

	err := c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"switch"}`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	c.Wait()
	assert.Empty(t, target.calls)
}

func TestController_HandleMessage_BackToBackSwitches(t *testing.T) {
	f := newManagerFixture(t, Options{})
	c := NewController(context.Background(), f.manager, true)
	defer c.Close()

	require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"switch","scenario_id":"movie"}`)))
	require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"switch","scenario_id":"music"}`)))
	c.Wait()

	assert.Equal(t, "music", f.manager.Active(), "last request wins")
}

func TestController_HandleMessage_RunsInArrivalOrder(t *testing.T) {
	target := &recordingTarget{}
	c := NewController(context.Background(), target, true)
	defer c.Close()

	var want []string
	for i := 0; i < RequestQueueSize; i++ {
		id := fmt.Sprintf("s%02d", i)
		want = append(want, "switch:"+id)
		payload := fmt.Sprintf(`{"action":"switch","scenario_id":%q}`, id)
		require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", []byte(payload)))
	}
	c.Wait()

	assert.Equal(t, want, target.calls)
}

func TestController_HandleMessage_FullQueue(t *testing.T) {
	target := &blockingTarget{
		entered: make(chan struct{}, RequestQueueSize+1),
		release: make(chan struct{}),
	}
	c := NewController(context.Background(), target, true)
	defer c.Close()
	payload := []byte(`{"action":"switch","scenario_id":"movie"}`)

	require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", payload))
	<-target.entered

	for i := 0; i < RequestQueueSize; i++ {
		require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", payload))
	}
	err := c.HandleMessage("avbridge/core/scenario/request", payload)
	assert.ErrorIs(t, err, ErrBusy)

	close(target.release)
	c.Wait()
	assert.Len(t, target.calls, RequestQueueSize+1, "rejected request never runs")
}

func TestController_Close(t *testing.T) {
	target := &recordingTarget{}
	c := NewController(context.Background(), target, true)

	require.NoError(t, c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"shutdown"}`)))
	c.Close()
	assert.Equal(t, []string{"shutdown"}, target.calls, "queued requests drain before Close returns")

	err := c.HandleMessage("avbridge/core/scenario/request", []byte(`{"action":"shutdown"}`))
	assert.ErrorIs(t, err, ErrControllerClosed)
	c.Close()
}
