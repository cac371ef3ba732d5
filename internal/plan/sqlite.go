package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/strivehq/assistant/migrations"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists plans in a local sqlite database.
type SQLiteStore struct {
	Path string
	db   *sql.DB
	// SQLite allows only one writer at a time; serialize writes to avoid
	// SQLITE_BUSY contention under concurrent request handling.
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}

	store := &SQLiteStore{Path: path, db: db}
	if err := store.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Apply(context.Background(), db, migrations.DriverSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) configure() error {
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA synchronous = NORMAL`,
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("configure sqlite (%s): %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, actionPlan *ActionPlan) error {
	if actionPlan == nil || actionPlan.ID == "" {
		return fmt.Errorf("action plan id is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO action_plans (id, title, content, status, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		actionPlan.ID,
		actionPlan.Title,
		actionPlan.Content,
		string(actionPlan.Status),
		actionPlan.Version,
		actionPlan.CreatedAt.UTC().Format(time.RFC3339Nano),
		actionPlan.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert action plan %q: %w", actionPlan.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*ActionPlan, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, content, status, version, created_at, updated_at
FROM action_plans WHERE id = ?`, id)
	return scanPlan(row, id)
}

func (s *SQLiteStore) Update(ctx context.Context, actionPlan *ActionPlan, expectedVersion int) error {
	if actionPlan == nil || actionPlan.ID == "" {
		return fmt.Errorf("action plan id is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `
UPDATE action_plans
SET title = ?, content = ?, status = ?, version = ?, updated_at = ?
WHERE id = ? AND version = ?`,
		actionPlan.Title,
		actionPlan.Content,
		string(actionPlan.Status),
		actionPlan.Version,
		actionPlan.UpdatedAt.UTC().Format(time.RFC3339Nano),
		actionPlan.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update action plan %q: %w", actionPlan.ID, err)
	}
	return classifyWriteMiss(ctx, s.db, result, actionPlan.ID, expectedVersion, "?")
}

func (s *SQLiteStore) Commit(ctx context.Context, id string) (*ActionPlan, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `
UPDATE action_plans SET status = ?, updated_at = ? WHERE id = ?`,
		string(StatusSaved),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("commit action plan %q: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("commit action plan %q rows affected: %w", id, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("action plan %q: %w", id, ErrNotFound)
	}
	return s.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner, id string) (*ActionPlan, error) {
	var actionPlan ActionPlan
	var status, createdAt, updatedAt string
	err := row.Scan(&actionPlan.ID, &actionPlan.Title, &actionPlan.Content, &status, &actionPlan.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action plan %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan action plan %q: %w", id, err)
	}

	actionPlan.Status = Status(status)
	if actionPlan.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for action plan %q: %w", id, err)
	}
	if actionPlan.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for action plan %q: %w", id, err)
	}
	return &actionPlan, nil
}

func parseStoredTime(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

// classifyWriteMiss distinguishes a missing row from a version mismatch
// after a guarded UPDATE touched zero rows. placeholder is the driver's
// positional parameter marker.
func classifyWriteMiss(ctx context.Context, db *sql.DB, result sql.Result, id string, expectedVersion int, placeholder string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for action plan %q: %w", id, err)
	}
	if affected > 0 {
		return nil
	}

	var currentVersion int
	err = db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT version FROM action_plans WHERE id = %s`, placeholder), id,
	).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("action plan %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read version for action plan %q: %w", id, err)
	}
	return fmt.Errorf("action plan %q at version %d, expected %d: %w",
		id, currentVersion, expectedVersion, ErrVersionConflict)
}
