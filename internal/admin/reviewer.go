package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/GophBank/internal/backend"
	"github.com/atinyakov/GophBank/internal/models"
	"go.uber.org/zap"
)

// Backend is the subset of the banking backend used by the review screens.
type Backend interface {
	ListApplications(ctx context.Context) ([]models.ApplicationRecord, error)
	GetApplication(ctx context.Context, id int64) (*models.ApplicationRecord, error)
	Approve(ctx context.Context, id int64) (string, error)
	Reject(ctx context.Context, id int64, reason string) (string, error)
	VerifyDocument(ctx context.Context, userID int64, doc models.DocumentType) (string, error)
	ViewImage(ctx context.Context, path string) (*backend.Image, error)
}

var (
	// ErrFinalized is returned for actions on approved or rejected applications.
	ErrFinalized = errors.New("application already finalized")
	// ErrNoCustomer is returned when a document cannot be verified because
	// the application is not linked to a customer profile.
	ErrNoCustomer = errors.New("application has no customer profile")
)

// Result is the outcome of an applied Action.
type Result struct {
	// Message is the backend's confirmation.
	Message string
	// Application is the record as re-read from the backend after the action.
	Application *models.ApplicationRecord
}

// Reviewer applies admin actions. Every action issues exactly one state
// changing backend call and then re-fetches the canonical list, so the
// cached records only ever reflect what the backend confirmed.
type Reviewer struct {
	backend Backend
	log     *zap.Logger

	mu   sync.RWMutex
	apps []models.ApplicationRecord
}

// NewReviewer returns a Reviewer backed by b.
func NewReviewer(b Backend, log *zap.Logger) *Reviewer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reviewer{backend: b, log: log}
}

// Refresh reloads the canonical application list from the backend.
func (r *Reviewer) Refresh(ctx context.Context) ([]models.ApplicationRecord, error) {
	apps, err := r.backend.ListApplications(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.apps = apps
	r.mu.Unlock()
	return append([]models.ApplicationRecord(nil), apps...), nil
}

// Applications returns the list from the last successful Refresh.
func (r *Reviewer) Applications() []models.ApplicationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.ApplicationRecord(nil), r.apps...)
}

// Application reads one application straight from the backend.
func (r *Reviewer) Application(ctx context.Context, id int64) (*models.ApplicationRecord, error) {
	return r.backend.GetApplication(ctx, id)
}

// Apply performs action a on application id.
//
// The application is read from the backend first so the approval gate is
// evaluated against current data. A blocked approval returns
// *ApprovalBlockedError without calling the approve endpoint.
func (r *Reviewer) Apply(ctx context.Context, id int64, a Action) (*Result, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	app, err := r.backend.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status.Final() {
		return nil, fmt.Errorf("%s application %d: %w", a.Kind, id, ErrFinalized)
	}

	var msg string
	switch a.Kind {
	case ActionApprove:
		if err := CheckApproval(*app); err != nil {
			return nil, err
		}
		msg, err = r.backend.Approve(ctx, id)
	case ActionReject:
		msg, err = r.backend.Reject(ctx, id, a.Reason)
	case ActionApproveDocument:
		if app.Verified(a.Document) {
			return &Result{Message: a.Document.Label() + " already verified", Application: app}, nil
		}
		if app.UserID == 0 {
			return nil, fmt.Errorf("verify %s for application %d: %w", a.Document, id, ErrNoCustomer)
		}
		msg, err = r.backend.VerifyDocument(ctx, app.UserID, a.Document)
	case ActionRejectDocument:
		msg, err = r.backend.Reject(ctx, id, fmt.Sprintf("%s rejected: %s", a.Document.Label(), a.Reason))
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrInvalidAction, a.Kind)
	}
	if err != nil {
		r.log.Warn("admin action failed",
			zap.Stringer("kind", a.Kind),
			zap.Int64("application_id", id),
			zap.Error(err))
		return nil, err
	}
	r.log.Info("admin action applied",
		zap.Stringer("kind", a.Kind),
		zap.Int64("application_id", id),
		zap.String("document", string(a.Document)))

	res := &Result{Message: msg}
	apps, err := r.Refresh(ctx)
	if err != nil {
		return res, fmt.Errorf("%s applied but refresh failed: %w", a.Kind, err)
	}
	for i := range apps {
		if apps[i].ID == id {
			res.Application = &apps[i]
			return res, nil
		}
	}
	// Not in the list any more (e.g. filtered once finalized); read it directly.
	updated, err := r.backend.GetApplication(ctx, id)
	if err != nil {
		return res, fmt.Errorf("%s applied but refresh failed: %w", a.Kind, err)
	}
	res.Application = updated
	return res, nil
}
