// Package location provides the room model used to bind scenarios to a
// physical space.
//
// A Room names the devices installed in it and, optionally, the scenario
// that should normally run there. Rooms are loaded from a YAML file and
// checked against the device registry; the scenario validator then uses
// ContainsDevice to make sure a room-bound scenario only drives devices
// that are actually in that room.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Reload replaces the room set
// wholesale; readers always see either the old or the new set.
package location
