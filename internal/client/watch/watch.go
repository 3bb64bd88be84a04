// Package watch polls the backend for an application's review status.
package watch

import (
	"context"
	"errors"
	"time"

	"github.com/atinyakov/GophBank/internal/models"
	"go.uber.org/zap"
)

// DefaultInterval is the polling period used by the shell.
const DefaultInterval = 10 * time.Second

// StatusSource fetches one application.
type StatusSource interface {
	GetApplication(ctx context.Context, id int64) (*models.ApplicationRecord, error)
}

// Application polls id every interval and calls onChange whenever the status
// or a verification flag differs from the previous poll. It returns the last
// record once the status is final, or ctx.Err() when ctx is cancelled.
// Poll errors are logged and retried on the next tick.
func Application(ctx context.Context, src StatusSource, id int64, interval time.Duration, log *zap.Logger, onChange func(models.ApplicationRecord)) (*models.ApplicationRecord, error) {
	if interval <= 0 {
		return nil, errors.New("watch: interval must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *models.ApplicationRecord
	for {
		app, err := src.GetApplication(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			log.Warn("poll application failed", zap.Int64("id", id), zap.Error(err))
		case last == nil || changed(*last, *app):
			last = app
			if onChange != nil {
				onChange(*app)
			}
		}
		if last != nil && last.Status.Final() {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func changed(a, b models.ApplicationRecord) bool {
	return a.Status != b.Status ||
		a.AadhaarVerified != b.AadhaarVerified ||
		a.PANVerified != b.PANVerified ||
		a.RejectionReason != b.RejectionReason
}
