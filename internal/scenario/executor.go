package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/avbridge/internal/condition"
	"github.com/nerrad567/avbridge/internal/device"
)

// DeviceRegistry resolves device handles. *device.Registry satisfies it.
type DeviceRegistry interface {
	GetDevice(id string) (device.Handle, error)
}

// ConditionEvaluator decides whether a guarded step runs.
// *condition.Evaluator satisfies it.
type ConditionEvaluator interface {
	Evaluate(expr string, state device.State) (bool, error)
}

// Executor runs command sequences strictly in order.
//
// A failing step never stops the sequence: a missing device, a command
// error or a device timeout marks that step failed and the next step runs.
// Only context cancellation ends a run early.
//
// Thread Safety: Run is safe for concurrent use, though the manager never
// runs two sequences at once.
type Executor struct {
	devices    DeviceRegistry
	conditions ConditionEvaluator
	logger     Logger

	// after waits between steps; replaced in tests.
	after func(time.Duration) <-chan time.Time
}

// NewExecutor creates an executor. A nil conditions evaluator gets the
// default condition language.
func NewExecutor(devices DeviceRegistry, conditions ConditionEvaluator) *Executor {
	if conditions == nil {
		conditions = condition.NewEvaluator()
	}
	return &Executor{
		devices:    devices,
		conditions: conditions,
		logger:     noopLogger{},
		after:      time.After,
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// Run executes steps in order and reports each outcome.
//
// Returns:
//   - *ExecutionReport: one StepResult per step, including cancelled ones
//   - error: nil unless the executor is misconfigured (ErrInvalidExecutor)
//     or ctx ended, in which case the partial report is returned with
//     ctx.Err()
func (e *Executor) Run(ctx context.Context, steps []CommandStep) (*ExecutionReport, error) {
	if e == nil || e.devices == nil || e.conditions == nil {
		return nil, ErrInvalidExecutor
	}

	report := &ExecutionReport{Steps: make([]StepResult, 0, len(steps))}
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			e.cancelRemaining(report, steps[i:])
			return report, err
		}

		res := e.runStep(ctx, step)
		report.add(res)

		if res.Status == StepCancelled {
			e.cancelRemaining(report, steps[i+1:])
			return report, ctx.Err()
		}

		if res.Status == StepExecuted && step.DelayAfterMS > 0 {
			select {
			case <-e.after(time.Duration(step.DelayAfterMS) * time.Millisecond):
			case <-ctx.Done():
				e.cancelRemaining(report, steps[i+1:])
				return report, ctx.Err()
			}
		}
	}
	return report, nil
}

func (e *Executor) cancelRemaining(report *ExecutionReport, steps []CommandStep) {
	report.Cancelled = true
	for _, s := range steps {
		report.add(StepResult{
			Device:  s.Device,
			Command: s.Command,
			Status:  StepCancelled,
			Reason:  "sequence cancelled",
		})
	}
}

func (e *Executor) runStep(ctx context.Context, step CommandStep) StepResult {
	start := time.Now()
	res := StepResult{Device: step.Device, Command: step.Command}
	finish := func(status StepStatus, err error, reason string) StepResult {
		res.Status = status
		res.Error = err
		res.Reason = reason
		res.Duration = time.Since(start)
		return res
	}

	h, err := e.devices.GetDevice(step.Device)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrUnknownDevice, step.Device, err)
		e.logger.Warn("step device not found", "device_id", step.Device, "command", step.Command, "error", err)
		return finish(StepFailed, err, err.Error())
	}

	if step.Condition != "" {
		// Read state now, not at plan time: earlier steps may have changed it.
		state, err := h.CurrentState(ctx)
		if err != nil {
			return finish(StepSkipped, err, "device state unavailable: "+err.Error())
		}
		ok, err := e.conditions.Evaluate(step.Condition, state)
		if err != nil {
			return finish(StepSkipped, err, "condition error: "+err.Error())
		}
		if !ok {
			e.logger.Debug("step skipped", "device_id", step.Device, "command", step.Command, "condition", step.Condition)
			return finish(StepSkipped, nil, "condition false: "+step.Condition)
		}
	}

	if err := h.ExecuteCommand(ctx, step.Command, device.CloneParams(step.Params)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return finish(StepCancelled, err, "sequence cancelled")
		}
		e.logger.Warn("step failed", "device_id", step.Device, "command", step.Command, "error", err)
		return finish(StepFailed, err, err.Error())
	}

	e.logger.Debug("step executed", "device_id", step.Device, "command", step.Command)
	return finish(StepExecuted, nil, "")
}
