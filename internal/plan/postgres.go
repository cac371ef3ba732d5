package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/strivehq/assistant/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists plans in postgres for multi-replica deployments.
type PostgresStore struct {
	DSN string
	db  *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	store := &PostgresStore{DSN: dsn, db: db}
	if err := store.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Apply(context.Background(), db, migrations.DriverPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply postgres migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) configure() error {
	s.db.SetMaxOpenConns(10)
	s.db.SetMaxIdleConns(5)
	s.db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, actionPlan *ActionPlan) error {
	if actionPlan == nil || actionPlan.ID == "" {
		return fmt.Errorf("action plan id is required")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO action_plans (id, title, content, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		actionPlan.ID,
		actionPlan.Title,
		actionPlan.Content,
		string(actionPlan.Status),
		actionPlan.Version,
		actionPlan.CreatedAt.UTC(),
		actionPlan.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert action plan %q: %w", actionPlan.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*ActionPlan, error) {
	var actionPlan ActionPlan
	var status string
	err := s.db.QueryRowContext(ctx, `
SELECT id, title, content, status, version, created_at, updated_at
FROM action_plans WHERE id = $1`, id).Scan(
		&actionPlan.ID,
		&actionPlan.Title,
		&actionPlan.Content,
		&status,
		&actionPlan.Version,
		&actionPlan.CreatedAt,
		&actionPlan.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action plan %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan action plan %q: %w", id, err)
	}
	actionPlan.Status = Status(status)
	return &actionPlan, nil
}

func (s *PostgresStore) Update(ctx context.Context, actionPlan *ActionPlan, expectedVersion int) error {
	if actionPlan == nil || actionPlan.ID == "" {
		return fmt.Errorf("action plan id is required")
	}

	result, err := s.db.ExecContext(ctx, `
UPDATE action_plans
SET title = $1, content = $2, status = $3, version = $4, updated_at = $5
WHERE id = $6 AND version = $7`,
		actionPlan.Title,
		actionPlan.Content,
		string(actionPlan.Status),
		actionPlan.Version,
		actionPlan.UpdatedAt.UTC(),
		actionPlan.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update action plan %q: %w", actionPlan.ID, err)
	}
	return classifyWriteMiss(ctx, s.db, result, actionPlan.ID, expectedVersion, "$1")
}

func (s *PostgresStore) Commit(ctx context.Context, id string) (*ActionPlan, error) {
	result, err := s.db.ExecContext(ctx, `
UPDATE action_plans SET status = $1, updated_at = $2 WHERE id = $3`,
		string(StatusSaved),
		time.Now().UTC(),
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
