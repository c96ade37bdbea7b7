// Package database provides the SQLite connection used for command history.
//
// It handles:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying versioned migrations registered in Migrations
//   - Health checks for the /health endpoint
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each .up.sql file should have a matching
// .down.sql so MigrateDown can undo it during development.
package database
