// Package history persists device state snapshots to SQLite.
//
// The bridge records a snapshot whenever the session reports a confirmed
// change, tagged with where the change came from (mqtt, api or session).
// The API serves the most recent entries and the bridge prunes entries
// older than the configured retention.
package history
