package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// Sources of a recorded state change.
const (
	SourceMQTT    = "mqtt"
	SourceAPI     = "api"
	SourceSession = "session"
	SourceCLI     = "cli"
)

// timestampFormat has fixed-width fractions so created_at sorts as text.
const timestampFormat = "2006-01-02T15:04:05.000000Z07:00"

const (
	// DefaultLimit is used when List is called with limit <= 0.
	DefaultLimit = 50
	// MaxLimit caps the number of entries List returns.
	MaxLimit = 200
)

var (
	ErrDeviceIDRequired = errors.New("history: device id is required")
	ErrInvalidRetention = errors.New("history: retention must be positive")
)

// Entry is one recorded snapshot.
type Entry struct {
	ID        int64        `json:"id"`
	DeviceID  string       `json:"device_id"`
	State     divoom.State `json:"state"`
	Source    string       `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
}

// Repository reads and writes the state_history table.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a Repository over an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts a snapshot for deviceID. An empty source defaults to
// SourceSession.
func (r *Repository) Record(ctx context.Context, deviceID string, state divoom.State, source string) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	if source == "" {
		source = SourceSession
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID,
		string(stateJSON),
		source,
		time.Now().UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// List returns the most recent entries for deviceID, newest first.
//
// Parameters:
//   - limit: Maximum entries (DefaultLimit when <= 0, capped at MaxLimit)
func (r *Repository) List(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, state, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry     Entry
			stateJSON string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		if entry.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many went.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// parseTimestamp accepts both the RFC 3339 timestamps written by Record
// and the column default used for rows inserted by hand.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at %q: %w", value, err)
	}
	return t, nil
}
