// Package store persists the audit trail: every normalized webhook event
// (with its raw payload retained) and the issue snapshots the polling
// fallback diffs against.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/pmbridge/internal/model"
)

// Snapshot is the stored view of an issue used for change detection.
type Snapshot struct {
	IssueID   string       `db:"issue_id"`
	ProjectID string       `db:"project_id"`
	Title     string       `db:"title"`
	Status    model.Status `db:"status"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// StoredEvent is an audit row joined back into the normalized shape.
type StoredEvent struct {
	Backend  string
	Instance string
	Event    model.WebhookEvent
}

// Store is the persistence boundary the poller and webhook ingress write
// through.
type Store interface {
	SaveEvent(ctx context.Context, backend, instance string, event *model.WebhookEvent) error
	ListEvents(ctx context.Context, limit int) ([]StoredEvent, error)
	UpsertSnapshots(ctx context.Context, backend, instance string, snapshots []Snapshot) error
	GetSnapshots(ctx context.Context, backend, instance string) (map[string]Snapshot, error)
	Close() error
}

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SaveEvent appends one normalized event to the audit log. A missing
// event id is assigned here; the backend never supplies one.
func (s *SQLiteStore) SaveEvent(
	ctx context.Context,
	backend, instance string,
	event *model.WebhookEvent,
) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	actor := ""
	if event.Actor != nil {
		actor = event.Actor.Login
	}

	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return fmt.Errorf("marshaling changes for event %s: %w", event.ID, err)
	}

	const query = `
		INSERT INTO events (
			id, backend, instance, kind, resource_kind,
			resource_id, project_id, actor, occurred_at, changes, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		event.ID, backend, instance, string(event.Kind), string(event.ResourceKind),
		event.ResourceID, event.ProjectID, actor, event.Timestamp.UTC(),
		string(changes), string(event.Raw),
	)
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", event.ID, err)
	}
	return nil
}

// eventRow is the scan target for the events table.
type eventRow struct {
	ID           string    `db:"id"`
	Backend      string    `db:"backend"`
	Instance     string    `db:"instance"`
	Kind         string    `db:"kind"`
	ResourceKind string    `db:"resource_kind"`
	ResourceID   string    `db:"resource_id"`
	ProjectID    string    `db:"project_id"`
	Actor        string    `db:"actor"`
	OccurredAt   time.Time `db:"occurred_at"`
	Changes      string    `db:"changes"`
	Raw          string    `db:"raw"`
}

// ListEvents returns the most recent events, newest first.
func (s *SQLiteStore) ListEvents(
	ctx context.Context,
	limit int,
) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []eventRow
	const query = `SELECT * FROM events ORDER BY occurred_at DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	events := make([]StoredEvent, 0, len(rows))
	for _, row := range rows {
		event := model.WebhookEvent{
			ID:           row.ID,
			Kind:         model.EventKind(row.Kind),
			ResourceKind: model.Kind(row.ResourceKind),
			ResourceID:   row.ResourceID,
			ProjectID:    row.ProjectID,
			Timestamp:    row.OccurredAt,
			Raw:          json.RawMessage(row.Raw),
		}
		if row.Actor != "" {
			event.Actor = &model.User{Login: row.Actor}
		}
		if row.Changes != "" && row.Changes != "{}" && row.Changes != "null" {
			var changes map[string]any
			if err := json.Unmarshal([]byte(row.Changes), &changes); err == nil {
				event.Changes = changes
			}
		}
		events = append(events, StoredEvent{
			Backend:  row.Backend,
			Instance: row.Instance,
			Event:    event,
		})
	}
	return events, nil
}

// UpsertSnapshots inserts or replaces a batch of issue snapshots.
func (s *SQLiteStore) UpsertSnapshots(
	ctx context.Context,
	backend, instance string,
	snapshots []Snapshot,
) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO snapshots (
			backend, instance, issue_id, project_id, title, status, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing snapshot upsert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		_, err = stmt.ExecContext(ctx,
			backend, instance, snap.IssueID, snap.ProjectID,
			snap.Title, string(snap.Status), snap.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upserting snapshot %s: %w", snap.IssueID, err)
		}
	}

	return tx.Commit()
}

// GetSnapshots returns the stored snapshots for one backend instance,
// keyed by issue id.
func (s *SQLiteStore) GetSnapshots(
	ctx context.Context,
	backend, instance string,
) (map[string]Snapshot, error) {
	var rows []Snapshot
	const query = `
		SELECT issue_id, project_id, title, status, updated_at
		FROM snapshots WHERE backend = ? AND instance = ?`
	if err := s.db.SelectContext(ctx, &rows, query, backend, instance); err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	snapshots := make(map[string]Snapshot, len(rows))
	for _, row := range rows {
		snapshots[row.IssueID] = row
	}
	return snapshots, nil
}
