// Package scenario orchestrates AV scenarios: declarative bundles of role
// assignments and command sequences that put a room's devices into one
// coordinated configuration.
//
// Definitions are loaded by a Loader, validated and cached by a Registry,
// and activated by a Manager. A switch between scenarios is planned from
// the device difference between them (BuildPlan) so shared devices are only
// touched when their configuration changes, then executed one step at a
// time by an Executor. While a scenario is active, role commands such as
// "volume/set_level" are routed to the bound device by a Delegator.
//
// Every switch, shutdown and role action produces a report, is recorded in
// the execution history and is broadcast as an event.
package scenario
