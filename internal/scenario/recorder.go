package scenario

import (
	"github.com/nerrad567/avbridge/internal/infrastructure/influxdb"
)

// Recorder receives finished transitions and role actions for telemetry.
type Recorder interface {
	RecordTransition(r *TransitionReport)
	RecordRoleAction(r *ActionReport)
}

// TelemetryWriter is the time-series surface InfluxRecorder needs.
// *influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteScenarioTransition(s influxdb.TransitionSample)
	WriteRoleAction(s influxdb.RoleActionSample)
}

// InfluxRecorder turns reports into InfluxDB points.
type InfluxRecorder struct {
	w TelemetryWriter
}

// NewInfluxRecorder creates a recorder writing through w.
func NewInfluxRecorder(w TelemetryWriter) *InfluxRecorder {
	return &InfluxRecorder{w: w}
}

// RecordTransition writes a scenario_transitions point.
func (r *InfluxRecorder) RecordTransition(rep *TransitionReport) {
	s := influxdb.TransitionSample{
		Kind:       rep.Kind,
		ScenarioID: rep.To,
		PreviousID: rep.From,
		Graceful:   rep.Graceful,
		Status:     string(rep.Status),
		Duration:   rep.Duration,
		At:         rep.CompletedAt,
	}
	if rep.Kind == KindShutdown {
		s.ScenarioID = rep.From
		s.PreviousID = ""
	}
	if rep.Execution != nil {
		s.Executed = rep.Execution.Executed
		s.Skipped = rep.Execution.Skipped
		s.Failed = rep.Execution.Failed
	}
	r.w.WriteScenarioTransition(s)
}

// RecordRoleAction writes a scenario_role_actions point.
func (r *InfluxRecorder) RecordRoleAction(rep *ActionReport) {
	r.w.WriteRoleAction(influxdb.RoleActionSample{
		ScenarioID: rep.ScenarioID,
		Role:       rep.Role,
		Command:    rep.Resolution.Command,
		DeviceID:   rep.Resolution.DeviceID,
		Outcome:    rep.Outcome(),
		Duration:   rep.Duration,
		At:         rep.CompletedAt,
	})
}
