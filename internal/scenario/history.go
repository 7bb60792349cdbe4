package scenario

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/avbridge/internal/infrastructure/database"
)

// Execution is the history record of one switch, shutdown or role action.
type Execution struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	FromScenarioID string          `json:"from_scenario_id,omitempty"`
	ToScenarioID   string          `json:"to_scenario_id,omitempty"`
	Role           string          `json:"role,omitempty"`
	Command        string          `json:"command,omitempty"`
	Graceful       bool            `json:"graceful"`
	Status         ExecutionStatus `json:"status"`
	Executed       int             `json:"executed"`
	Skipped        int             `json:"skipped"`
	Failed         int             `json:"failed"`
	Failures       []Failure       `json:"failures,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DurationMS     *int            `json:"duration_ms,omitempty"`
}

// Failure is a failed step as stored in history.
type Failure struct {
	Phase   Phase  `json:"phase,omitempty"`
	Device  string `json:"device"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

// ExecutionFromTransition builds the history record for a transition.
func ExecutionFromTransition(r *TransitionReport) *Execution {
	exec := &Execution{
		ID:             r.ID,
		Kind:           r.Kind,
		FromScenarioID: r.From,
		ToScenarioID:   r.To,
		Graceful:       r.Graceful,
		Status:         r.Status,
		StartedAt:      r.StartedAt,
	}
	exec.fill(r.Execution, r.CompletedAt, r.Duration)
	return exec
}

// ExecutionFromAction builds the history record for a role action.
func ExecutionFromAction(r *ActionReport) *Execution {
	exec := &Execution{
		ID:           r.ID,
		Kind:         KindRoleAction,
		ToScenarioID: r.ScenarioID,
		Role:         r.Role,
		Command:      r.Command,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
	}
	exec.fill(r.Execution, r.CompletedAt, r.Duration)
	return exec
}

func (e *Execution) fill(report *ExecutionReport, completedAt time.Time, d time.Duration) {
	if report != nil {
		e.Executed = report.Executed
		e.Skipped = report.Skipped
		e.Failed = report.Failed
		for _, f := range report.Failures() {
			e.Failures = append(e.Failures, Failure{
				Phase:   f.Phase,
				Device:  f.Device,
				Command: f.Command,
				Error:   f.Reason,
			})
		}
	}
	if !completedAt.IsZero() {
		t := completedAt
		e.CompletedAt = &t
		ms := int(d.Milliseconds())
		e.DurationMS = &ms
	}
}

// HistoryRepository stores execution records.
type HistoryRepository interface {
	// Record inserts exec, assigning an ID when it has none.
	Record(ctx context.Context, exec *Execution) error

	// Get returns one record or ErrExecutionNotFound.
	Get(ctx context.Context, id string) (*Execution, error)

	// List returns the most recent records, newest first. An empty
	// scenarioID lists every scenario.
	List(ctx context.Context, scenarioID string, limit int) ([]Execution, error)
}

// timeLayout is fixed-width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// SQLiteHistory implements HistoryRepository on the scenario_executions table.
type SQLiteHistory struct {
	db *database.DB
}

// NewSQLiteHistory creates a history repository backed by db.
func NewSQLiteHistory(db *database.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts a new execution record.
func (h *SQLiteHistory) Record(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}

	failuresJSON, err := marshalFailures(exec.Failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	query := `
		INSERT INTO scenario_executions (
			id, kind, from_scenario_id, to_scenario_id, role, command,
			graceful, status, executed, skipped, failed,
			failures, started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = h.db.ExecContext(ctx, query,
		exec.ID,
		exec.Kind,
		nullableString(exec.FromScenarioID),
		nullableString(exec.ToScenarioID),
		nullableString(exec.Role),
		nullableString(exec.Command),
		boolToInt(exec.Graceful),
		string(exec.Status),
		exec.Executed,
		exec.Skipped,
		exec.Failed,
		failuresJSON,
		exec.StartedAt.UTC().Format(timeLayout),
		nullableTime(exec.CompletedAt),
		nullableInt(exec.DurationMS),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

const selectExecution = `
	SELECT id, kind, from_scenario_id, to_scenario_id, role, command,
		graceful, status, executed, skipped, failed,
		failures, started_at, completed_at, duration_ms
	FROM scenario_executions`

// Get retrieves an execution by ID.
func (h *SQLiteHistory) Get(ctx context.Context, id string) (*Execution, error) {
	row := h.db.QueryRowContext(ctx, selectExecution+` WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return exec, nil
}

// List retrieves recent executions. scenarioID matches either side of a
// transition.
func (h *SQLiteHistory) List(ctx context.Context, scenarioID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if scenarioID == "" {
		rows, err = h.db.QueryContext(ctx, selectExecution+` ORDER BY started_at DESC LIMIT ?`, limit)
	} else {
		rows, err = h.db.QueryContext(ctx, selectExecution+`
			WHERE to_scenario_id = ? OR from_scenario_id = ?
			ORDER BY started_at DESC
			LIMIT ?`, scenarioID, scenarioID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		out = append(out, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var (
		exec                              Execution
		from, to, role, command, failures sql.NullString
		completedAt                       sql.NullString
		duration                          sql.NullInt64
		graceful                          int
		status, startedAt                 string
	)
	if err := row.Scan(
		&exec.ID, &exec.Kind, &from, &to, &role, &command,
		&graceful, &status, &exec.Executed, &exec.Skipped, &exec.Failed,
		&failures, &startedAt, &completedAt, &duration,
	); err != nil {
		return nil, err
	}

	exec.FromScenarioID = from.String
	exec.ToScenarioID = to.String
	exec.Role = role.String
	exec.Command = command.String
	exec.Graceful = graceful != 0
	exec.Status = ExecutionStatus(status)

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	exec.StartedAt = t

	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		exec.CompletedAt = &t
	}
	if duration.Valid {
		ms := int(duration.Int64)
		exec.DurationMS = &ms
	}
	if failures.Valid && failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &exec.Failures); err != nil {
			return nil, fmt.Errorf("unmarshalling failures: %w", err)
		}
	}
	return &exec, nil
}

func marshalFailures(failures []Failure) (any, error) {
	if len(failures) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
