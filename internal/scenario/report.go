package scenario

import "time"

// StepStatus is the outcome of one command step.
type StepStatus string

const (
	StepExecuted  StepStatus = "executed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// StepResult records what happened to one step.
type StepResult struct {
	Index   int        `json:"index"`
	Phase   Phase      `json:"phase,omitempty"`
	Device  string     `json:"device"`
	Command string     `json:"command"`
	Status  StepStatus `json:"status"`

	// Error is the command, lookup or condition error. Nil for executed steps.
	Error error `json:"-"`

	// Reason explains a skip or failure in words.
	Reason string `json:"reason,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// ExecutionReport is the outcome of running a sequence.
type ExecutionReport struct {
	Steps    []StepResult `json:"steps"`
	Executed int          `json:"executed"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`

	// Cancelled is set when the context ended before every step ran.
	Cancelled bool `json:"cancelled"`
}

func (r *ExecutionReport) add(res StepResult) {
	res.Index = len(r.Steps)
	r.Steps = append(r.Steps, res)
	switch res.Status {
	case StepExecuted:
		r.Executed++
	case StepSkipped:
		r.Skipped++
	case StepFailed:
		r.Failed++
	case StepCancelled:
	}
}

// merge appends other's steps, tagging them with phase.
func (r *ExecutionReport) merge(other *ExecutionReport, phase Phase) {
	if other == nil {
		return
	}
	for _, s := range other.Steps {
		s.Phase = phase
		r.add(s)
	}
	r.Cancelled = r.Cancelled || other.Cancelled
}

// Failures returns the failed steps.
func (r *ExecutionReport) Failures() []StepResult {
	if r == nil {
		return nil
	}
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			out = append(out, s)
		}
	}
	return out
}

// CancelledSteps returns how many steps never ran.
func (r *ExecutionReport) CancelledSteps() int {
	return len(r.Steps) - r.Executed - r.Skipped - r.Failed
}

// ExecutionStatus summarises a transition or role action.
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial"   // Some steps failed, the rest ran
	StatusFailed    ExecutionStatus = "failed"    // Every attempted step failed
	StatusCancelled ExecutionStatus = "cancelled" // Context ended mid-execution
	StatusNoOp      ExecutionStatus = "noop"
)

func statusOf(r *ExecutionReport) ExecutionStatus {
	switch {
	case r == nil:
		return StatusCompleted
	case r.Cancelled:
		return StatusCancelled
	case r.Failed > 0 && r.Executed == 0:
		return StatusFailed
	case r.Failed > 0:
		return StatusPartial
	default:
		return StatusCompleted
	}
}

// Transition kinds.
const (
	KindSwitch     = "switch"
	KindShutdown   = "shutdown"
	KindRoleAction = "role_action"
)

// TransitionReport is returned by SwitchScenario and Shutdown.
type TransitionReport struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Graceful bool   `json:"graceful"`

	// NoOp is set when the target was already active.
	NoOp bool `json:"noop,omitempty"`

	Plan      Plan             `json:"plan"`
	Execution *ExecutionReport `json:"execution,omitempty"`
	Failures  []StepResult     `json:"failures,omitempty"`
	Status    ExecutionStatus  `json:"status"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ns"`
}

func (r *TransitionReport) finish(exec *ExecutionReport) {
	r.Execution = exec
	r.Failures = exec.Failures()
	if r.NoOp {
		r.Status = StatusNoOp
	} else {
		r.Status = statusOf(exec)
	}
	r.CompletedAt = time.Now().UTC()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
}

// ActionReport is returned by ExecuteRoleAction.
type ActionReport struct {
	ID         string           `json:"id"`
	ScenarioID string           `json:"scenario_id"`
	Role       string           `json:"role"`
	Command    string           `json:"command"`
	Resolution Resolution       `json:"resolution"`
	Execution  *ExecutionReport `json:"execution,omitempty"`
	Failures   []StepResult     `json:"failures,omitempty"`
	Status     ExecutionStatus  `json:"status"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// Outcome is "skipped" when the delegator elided the call, otherwise the
// single step's status.
func (r *ActionReport) Outcome() string {
	if r.Resolution.Skip {
		return string(StepSkipped)
	}
	if r.Execution != nil && len(r.Execution.Steps) > 0 {
		return string(r.Execution.Steps[0].Status)
	}
	return string(StepCancelled)
}

func (r *ActionReport) finish(exec *ExecutionReport) {
	r.Execution = exec
	r.Failures = exec.Failures()
	r.Status = statusOf(exec)
	r.CompletedAt = time.Now().UTC()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
}
