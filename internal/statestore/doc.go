// Package statestore persists small JSON documents under string keys.
//
// The scenario manager keeps its last active scenario snapshot here under
// the key "scenario:last" so it can be restored after a restart. Three
// backends implement Store:
//
//   - MemoryStore: process-local, for tests and ephemeral deployments
//   - SQLiteStore: the kv_state table in the AV Bridge database
//   - ValkeyStore: a Valkey (or Redis) server, shared between instances
//
// Values are always encoded with encoding/json, so every backend stores
// the same bytes and a snapshot can move between backends unchanged.
package statestore
