// Package state records deployment history in a local SQLite database.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
)

//go:embed migrations/001_initial.sql
var initialMigration string

// Store persists deployment records at <dataDir>/hadeploy.db.
type Store struct {
	db *sql.DB
}

// Deployment is one recorded deploy invocation.
type Deployment struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	BackupSlug string     `json:"backup_slug,omitempty"`
	Error      string     `json:"error,omitempty"`
	DryRun     bool       `json:"dry_run"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// New opens (and migrates) the history database under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "hadeploy.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(initialMigration); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart inserts a new deployment in the given initial state and
// returns it with its generated ID.
func (s *Store) RecordStart(ctx context.Context, state string, dryRun bool) (*Deployment, error) {
	d := &Deployment{
		ID:        uuid.New().String(),
		State:     state,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployments (id, state, dry_run, started_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.State, d.DryRun, d.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record deployment: %w", err)
	}
	return d, nil
}

// RecordFinish stores the terminal state of a deployment.
func (s *Store) RecordFinish(ctx context.Context, id, state, backupSlug, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET state = ?, backup_slug = ?, error = ?, finished_at = ? WHERE id = ?`,
		state, backupSlug, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update deployment: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.ErrDeploymentNotFound
	}
	return nil
}

// GetDeployment returns one deployment by ID.
func (s *Store) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, state, backup_slug, error, dry_run, started_at, finished_at
		 FROM deployments WHERE id = ?`, id)

	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return d, nil
}

// ListDeployments returns the most recent deployments, newest first.
func (s *Store) ListDeployments(ctx context.Context, limit int) ([]*Deployment, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, backup_slug, error, dry_run, started_at, finished_at
		 FROM deployments ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row scanner) (*Deployment, error) {
	var d Deployment
	var finished sql.NullTime
	err := row.Scan(&d.ID, &d.State, &d.BackupSlug, &d.Error, &d.DryRun, &d.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		d.FinishedAt = &finished.Time
	}
	return &d, nil
}
