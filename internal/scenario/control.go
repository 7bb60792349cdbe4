package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Request actions.
const (
	ActionSwitch   = "switch"
	ActionShutdown = "shutdown"
	ActionRole     = "role"
	ActionPreset   = "preset"
)

// ErrInvalidRequest is returned for control requests that cannot be decoded
// or lack a required field.
var ErrInvalidRequest = errors.New("scenario: invalid request")

// Request is a control message received on the scenario request topic.
//
//	{"action": "switch", "scenario_id": "movie", "graceful": true}
//	{"action": "shutdown"}
//	{"action": "role", "role": "volume", "command": "set_level", "params": {"level": 40}}
//	{"action": "preset", "preset": "mute"}
type Request struct {
	Action     string         `json:"action"`
	ScenarioID string         `json:"scenario_id,omitempty"`
	Graceful   *bool          `json:"graceful,omitempty"`
	Role       string         `json:"role,omitempty"`
	Command    string         `json:"command,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Preset     string         `json:"preset,omitempty"`
}

// ParseRequest decodes and checks a control request.
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	switch req.Action {
	case ActionSwitch:
		if req.ScenarioID == "" {
			return Request{}, fmt.Errorf("%w: switch requires scenario_id", ErrInvalidRequest)
		}
	case ActionShutdown:
	case ActionRole:
		if req.Role == "" || req.Command == "" {
			return Request{}, fmt.Errorf("%w: role requires role and command", ErrInvalidRequest)
		}
	case ActionPreset:
		if req.Preset == "" {
			return Request{}, fmt.Errorf("%w: preset requires preset", ErrInvalidRequest)
		}
	default:
		return Request{}, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	}
	return req, nil
}

// Controllable is the manager surface driven by control requests.
// *Manager satisfies it.
type Controllable interface {
	SwitchScenario(ctx context.Context, id string, graceful bool) (*TransitionReport, error)
	Shutdown(ctx context.Context) (*TransitionReport, error)
	ExecuteRoleAction(ctx context.Context, role, command string, params map[string]any) (*ActionReport, error)
	RunPreset(ctx context.Context, name string) (*ActionReport, error)
}

// RequestQueueSize bounds the control requests waiting for the manager.
const RequestQueueSize = 16

// ErrControllerClosed is returned for requests arriving after Close.
var ErrControllerClosed = errors.New("scenario: controller closed")

// Controller turns control requests into manager calls.
//
// Requests run one at a time on a single worker goroutine, in the order
// they arrived. Outcomes reach subscribers through the manager's own
// events; the controller only logs them.
//
// Thread Safety: all methods are safe for concurrent use.
type Controller struct {
	ctx             context.Context
	target          Controllable
	defaultGraceful bool
	logger          Logger

	mu      sync.Mutex
	queue   chan Request
	started bool
	closed  bool
	done    chan struct{}
	pending sync.WaitGroup
}

// NewController creates a controller whose queued requests run under ctx.
func NewController(ctx context.Context, target Controllable, defaultGraceful bool) *Controller {
	return &Controller{
		ctx:             ctx,
		target:          target,
		defaultGraceful: defaultGraceful,
		logger:          noopLogger{},
		queue:           make(chan Request, RequestQueueSize),
		done:            make(chan struct{}),
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// HandleMessage decodes payload and queues the request for the worker. It
// never waits on a transition, so the MQTT delivery goroutine is not held.
// A full queue fails with ErrBusy. It matches the MQTT client's message
// handler signature.
func (c *Controller) HandleMessage(topic string, payload []byte) error {
	req, err := ParseRequest(payload)
	if err != nil {
		return fmt.Errorf("request on %s: %w", topic, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("request on %s: %w", topic, ErrControllerClosed)
	}
	if !c.started {
		c.started = true
		go c.work()
	}

	c.pending.Add(1)
	select {
	case c.queue <- req:
		return nil
	default:
		c.pending.Done()
		return fmt.Errorf("request on %s: %w: %d requests queued", topic, ErrBusy, RequestQueueSize)
	}
}

func (c *Controller) work() {
	defer close(c.done)
	for req := range c.queue {
		_ = c.Do(c.ctx, req) //nolint:errcheck // logged by Do
		c.pending.Done()
	}
}

// Wait blocks until every queued request has run.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Close stops accepting requests and waits for the queued ones to finish.
// Cancel the controller's context first to make them fail fast.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	close(c.queue)
	c.mu.Unlock()

	if started {
		<-c.done
	}
}

// Do runs req synchronously and logs its outcome.
func (c *Controller) Do(ctx context.Context, req Request) error {
	var (
		status ExecutionStatus
		err    error
	)

	switch req.Action {
	case ActionSwitch:
		graceful := c.defaultGraceful
		if req.Graceful != nil {
			graceful = *req.Graceful
		}
		var r *TransitionReport
		r, err = c.target.SwitchScenario(ctx, req.ScenarioID, graceful)
		if r != nil {
			status = r.Status
		}
	case ActionShutdown:
		var r *TransitionReport
		r, err = c.target.Shutdown(ctx)
		if r != nil {
			status = r.Status
		}
	case ActionRole:
		var r *ActionReport
		r, err = c.target.ExecuteRoleAction(ctx, req.Role, req.Command, req.Params)
		if r != nil {
			status = r.Status
		}
	case ActionPreset:
		var r *ActionReport
		r, err = c.target.RunPreset(ctx, req.Preset)
		if r != nil {
			status = r.Status
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	}

	if err != nil {
		c.logger.Error("control request failed",
			"action", req.Action,
			"scenario_id", req.ScenarioID,
			"role", req.Role,
			"preset", req.Preset,
			"status", status,
			"error", err,
		)
		return err
	}
	c.logger.Info("control request handled",
		"action", req.Action,
		"scenario_id", req.ScenarioID,
		"role", req.Role,
		"preset", req.Preset,
		"status", status,
	)
	return nil
}
