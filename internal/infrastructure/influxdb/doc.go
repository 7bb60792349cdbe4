// Package influxdb records scenario telemetry in InfluxDB v2.
//
// Two measurements are written:
//   - scenario_transitions: one point per switch or shutdown
//     (tags kind, scenario, previous, status, graceful; fields duration_ms,
//     executed, skipped, failed)
//   - scenario_role_actions: one point per role action
//     (tags scenario, role, command, outcome; fields device_id, duration_ms)
//
// Telemetry is optional. Connect returns ErrDisabled when the config
// section is disabled, and writes on a disconnected client are dropped.
// Writes are non-blocking and batched per batch_size and flush_interval.
package influxdb
