// Package database provides the SQLite connection used by AV Bridge.
//
// The database holds two things: the kv_state table backing the SQLite
// state store (last active scenario snapshot) and the scenario_executions
// history table. Connections use WAL mode and a busy timeout, and the file
// is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the migrations package and registered with
// RegisterMigrations. Each version has an .up.sql and a .down.sql file and
// is applied in its own transaction.
package database
