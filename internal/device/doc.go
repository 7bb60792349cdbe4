// Package device is the device registry the scenario orchestrator drives.
//
// Devices are declared in YAML (see LoadDefinitions). Each declared command
// becomes an entry in the device's capability map; the default handler
// publishes the command to the device's bridge over MQTT and then applies
// the command's declared effects to the cached state. Bridges report state
// on {prefix}/state/{protocol}/{device_id}; Registry.HandleStateMessage
// decodes those reports and merges them into the cache.
//
// A definition may also carry a role capability table that maps standard
// role commands (e.g. "play" for the "playback" role) onto device-specific
// commands, parameter renames and toggle preconditions. The scenario
// package consults it through Registry.RoleCommand.
//
// Every command runs under the device's command timeout, so a hung bridge
// surfaces as a command error rather than a stalled sequence.
package device
