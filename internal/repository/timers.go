// Package repository provides PostgreSQL persistence for sessions and OTP
// resend countdowns.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/GophBank/internal/models"
)

// PostgresTimerRepository stores OTP countdowns in the otp_timers table.
// It implements onboarding.TimerStore.
type PostgresTimerRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresTimerRepository creates a repository on top of db.
// db must be a valid connection to a PostgreSQL instance with the schema
// created by db.InitPostgres.
func NewPostgresTimerRepository(db *sql.DB) *PostgresTimerRepository {
	return &PostgresTimerRepository{DB: db}
}

// LoadTimer returns the countdown stored under key, or nil if there is none.
func (r *PostgresTimerRepository) LoadTimer(ctx context.Context, key string) (*models.TimerState, error) {
	var st models.TimerState
	err := r.DB.QueryRowContext(ctx,
		`SELECT expiry_ms FROM otp_timers WHERE key = $1`,
		key,
	).Scan(&st.ExpiryTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LoadTimer failed: %w", err)
	}
	return &st, nil
}

// SaveTimer inserts or replaces the countdown under key.
func (r *PostgresTimerRepository) SaveTimer(ctx context.Context, key string, st models.TimerState) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO otp_timers (key, expiry_ms, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			expiry_ms = EXCLUDED.expiry_ms,
			updated_at = now()
	`, key, st.ExpiryTime)
	if err != nil {
		return fmt.Errorf("SaveTimer failed: %w", err)
	}
	return nil
}

// DeleteTimer removes the countdown under key. Deleting a missing key is not an error.
func (r *PostgresTimerRepository) DeleteTimer(ctx context.Context, key string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM otp_timers WHERE key = $1`, key); err != nil {
		return fmt.Errorf("DeleteTimer failed: %w", err)
	}
	return nil
}
