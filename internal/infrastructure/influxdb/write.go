package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTransitions = "scenario_transitions"
	MeasurementRoleActions = "scenario_role_actions"
)

// TransitionSample describes one scenario switch or shutdown.
type TransitionSample struct {
	Kind       string // "switch" or "shutdown"
	ScenarioID string
	PreviousID string
	Graceful   bool
	Status     string
	Executed   int
	Skipped    int
	Failed     int
	Duration   time.Duration
	At         time.Time
}

// RoleActionSample describes one role action.
type RoleActionSample struct {
	ScenarioID string
	Role       string
	Command    string
	DeviceID   string
	Outcome    string // "executed", "skipped" or "failed"
	Duration   time.Duration
	At         time.Time
}

// WriteScenarioTransition queues a scenario_transitions point.
// Silently dropped when not connected.
func (c *Client) WriteScenarioTransition(s TransitionSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(transitionPoint(s))
}

// WriteRoleAction queues a scenario_role_actions point.
// Silently dropped when not connected.
func (c *Client) WriteRoleAction(s RoleActionSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(roleActionPoint(s))
}

// WritePoint queues a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func transitionPoint(s TransitionSample) *write.Point {
	tags := map[string]string{
		"kind":     s.Kind,
		"scenario": s.ScenarioID,
		"status":   s.Status,
		"graceful": strconv.FormatBool(s.Graceful),
	}
	if s.PreviousID != "" {
		tags["previous"] = s.PreviousID
	}
	return write.NewPoint(MeasurementTransitions, tags, map[string]any{
		"duration_ms": s.Duration.Milliseconds(),
		"executed":    s.Executed,
		"skipped":     s.Skipped,
		"failed":      s.Failed,
	}, timestampOrNow(s.At))
}

func roleActionPoint(s RoleActionSample) *write.Point {
	return write.NewPoint(MeasurementRoleActions, map[string]string{
		"scenario": s.ScenarioID,
		"role":     s.Role,
		"command":  s.Command,
		"outcome":  s.Outcome,
	}, map[string]any{
		"device_id":   s.DeviceID,
		"duration_ms": s.Duration.Milliseconds(),
	}, timestampOrNow(s.At))
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
