package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartExpiredTimerCleaner periodically removes OTP countdowns that expired
// more than retention ago. An expired countdown means resend is allowed, so
// dropping the row does not change behaviour.
func StartExpiredTimerCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	startCleaner(ctx, db, interval, log, "otp timers", `
        DELETE FROM otp_timers
         WHERE expiry_ms < $1
    `, func() any { return time.Now().Add(-retention).UnixMilli() })
}

// StartExpiredSessionCleaner periodically removes persisted sessions past
// their expiry. Sessions still in memory are swept by the session service.
func StartExpiredSessionCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	log *zap.Logger,
) {
	startCleaner(ctx, db, interval, log, "sessions", `
        DELETE FROM sessions
         WHERE expires_at < $1
    `, func() any { return time.Now() })
}

func startCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	log *zap.Logger,
	what string,
	query string,
	cutoff func() any,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := db.ExecContext(ctx, query, cutoff())
				if err != nil {
					log.Error("failed to clean expired "+what, zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("cleaned expired "+what, zap.Int64("removed", rows))
				}
			}
		}
	}()
}
