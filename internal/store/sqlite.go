package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailsync/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
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

// Load returns the stored payload for namespace.
func (s *SQLiteStore) Load(ctx context.Context, namespace string) ([]byte, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, "SELECT payload FROM namespaces WHERE name = ?", namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying namespace %s: %w", namespace, err)
	}
	return payload, nil
}

// Save replaces the stored payload for namespace.
func (s *SQLiteStore) Save(ctx context.Context, namespace string, payload []byte) error {
	const query = `
		INSERT INTO namespaces (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, namespace, payload, s.now().UTC()); err != nil {
		return fmt.Errorf("saving namespace %s: %w", namespace, err)
	}
	return nil
}

// SetLastSync records the time of the account's latest successful fetch.
func (s *SQLiteStore) SetLastSync(ctx context.Context, accountID string, at time.Time) error {
	const query = `
		INSERT INTO accounts (id, last_sync) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET last_sync = excluded.last_sync`

	if _, err := s.db.ExecContext(ctx, query, accountID, at.UTC()); err != nil {
		return fmt.Errorf("updating last sync for %s: %w", accountID, err)
	}
	return nil
}

// LastSync returns the account's last successful fetch time.
func (s *SQLiteStore) LastSync(ctx context.Context, accountID string) (time.Time, error) {
	var at sql.NullTime
	err := s.db.GetContext(ctx, &at, "SELECT last_sync FROM accounts WHERE id = ?", accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last sync for %s: %w", accountID, err)
	}
	if !at.Valid {
		return time.Time{}, nil
	}
	return at.Time, nil
}

// DeleteAccount removes the account's metadata and sync history.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, accountID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_runs WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("deleting sync runs for %s: %w", accountID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", accountID); err != nil {
		return fmt.Errorf("deleting account %s: %w", accountID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// StartRun inserts an unfinished run and returns it.
func (s *SQLiteStore) StartRun(ctx context.Context, accountID, job string) (model.SyncRun, error) {
	run := model.SyncRun{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Job:       job,
		StartedAt: s.now().UTC(),
	}

	const query = `
		INSERT INTO sync_runs (id, account_id, job, started_at)
		VALUES (:id, :account_id, :job, :started_at)`

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return model.SyncRun{}, fmt.Errorf("inserting sync run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the run's end time, mail count and error text.
func (s *SQLiteStore) FinishRun(ctx context.Context, run model.SyncRun) error {
	if run.FinishedAt == nil {
		now := s.now().UTC()
		run.FinishedAt = &now
	}

	const query = `
		UPDATE sync_runs
		SET finished_at = :finished_at, mail_count = :mail_count, error = :error
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("finishing sync run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking sync run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("sync run %s not found", run.ID)
	}
	return nil
}

// LastError returns the error recorded by the account's latest finished
// run.
func (s *SQLiteStore) LastError(ctx context.Context, accountID string) (string, error) {
	const query = `
		SELECT error FROM sync_runs
		WHERE account_id = ? AND finished_at IS NOT NULL
		ORDER BY finished_at DESC, started_at DESC
		LIMIT 1`

	var msg string
	err := s.db.GetContext(ctx, &msg, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying last error for %s: %w", accountID, err)
	}
	return msg, nil
}

// RecentRuns returns up to limit runs for the account, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, accountID string, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, account_id, job, started_at, finished_at, mail_count, error
		FROM sync_runs
		WHERE account_id = ?
		ORDER BY started_at DESC
		LIMIT ?`

	var runs []model.SyncRun
	if err := s.db.SelectContext(ctx, &runs, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("querying sync runs for %s: %w", accountID, err)
	}
	return runs, nil
}
