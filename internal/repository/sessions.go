package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/GophBank/internal/service"
)

// PostgresSessionRepository stores sessions in the sessions table.
// It implements service.Store.
type PostgresSessionRepository struct {
	DB *sql.DB
}

// NewPostgresSessionRepository creates a repository on top of db.
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{DB: db}
}

// SaveSession inserts or replaces rec, snapshot included.
func (r *PostgresSessionRepository) SaveSession(ctx context.Context, rec service.Record) error {
	snap, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("SaveSession failed: encode snapshot: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO sessions (id, token, subject, role, expires_at, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
	`, rec.ID, rec.Token, rec.Subject, rec.Role, rec.ExpiresAt, snap)
	if err != nil {
		return fmt.Errorf("SaveSession failed: %w", err)
	}
	return nil
}

// LoadSession returns the session with id, or nil if there is none.
func (r *PostgresSessionRepository) LoadSession(ctx context.Context, id string) (*service.Record, error) {
	rec := service.Record{ID: id}
	var snap []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT token, subject, role, expires_at, snapshot FROM sessions WHERE id = $1`,
		id,
	).Scan(&rec.Token, &rec.Subject, &rec.Role, &rec.ExpiresAt, &snap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LoadSession failed: %w", err)
	}
	if err := json.Unmarshal(snap, &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("LoadSession failed: decode snapshot: %w", err)
	}
	return &rec, nil
}

// DeleteSession removes the session with id. Deleting a missing id is not an error.
func (r *PostgresSessionRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("DeleteSession failed: %w", err)
	}
	return nil
}
