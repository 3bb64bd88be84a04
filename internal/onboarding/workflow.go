// Package onboarding drives an applicant through the account-opening flow:
// email entry, OTP confirmation, personal details, KYC upload.
//
// Stages only move forward one step at a time, or back one step through
// GoBack. Every forward transition happens only after the backend accepted
// the corresponding call; input problems are reported as *ValidationError
// without contacting the backend.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/GophBank/internal/models"
	"go.uber.org/zap"
)

// Backend is the subset of the banking backend used by the workflow.
type Backend interface {
	SendOTP(ctx context.Context, email string) (string, error)
	ResendOTP(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, email, code string) (bool, error)
	Apply(ctx context.Context, details models.PersonalDetails) (*models.ApplicationRecord, error)
	UploadKYC(ctx context.Context, applicationID int64, docs models.KYCDocuments) (string, error)
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithLogger sets the logger used for stage transitions.
func WithLogger(log *zap.Logger) Option {
	return func(w *Workflow) { w.log = log }
}

// WithTimerKey stores the countdown under key instead of TimerKey.
func WithTimerKey(key string) Option {
	return func(w *Workflow) { w.timerKey = key }
}

// WithResendWindow changes how long resend stays disabled.
func WithResendWindow(d time.Duration) Option {
	return func(w *Workflow) { w.window = d }
}

// WithOnTransition registers fn to receive a Snapshot after every stage
// change. fn runs outside the workflow lock.
func WithOnTransition(fn func(ctx context.Context, s Snapshot)) Option {
	return func(w *Workflow) { w.onTransition = fn }
}

// Workflow is one applicant's onboarding session. It is safe for concurrent
// use; operations are serialized.
type Workflow struct {
	mu sync.Mutex

	backend  Backend
	timers   TimerStore
	validate *Validator
	now      func() time.Time
	log      *zap.Logger
	timerKey string
	window   time.Duration

	onTransition func(ctx context.Context, s Snapshot)
	changed      bool

	stage         Stage
	email         string
	details       *models.PersonalDetails
	applicationID int64
	message       string
}

// New returns a Workflow in StageEmailEntry.
func New(backend Backend, timers TimerStore, opts ...Option) *Workflow {
	w := &Workflow{
		backend:  backend,
		timers:   timers,
		now:      time.Now,
		log:      zap.NewNop(),
		timerKey: TimerKey,
		window:   DefaultResendWindow,
		stage:    StageEmailEntry,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.validate = NewValidator(w.now)
	return w
}

// Stage returns the current stage.
func (w *Workflow) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// Email returns the address the OTP was requested for.
func (w *Workflow) Email() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.email
}

// ApplicationID returns the backend id assigned when details were accepted,
// or 0 before that.
func (w *Workflow) ApplicationID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applicationID
}

// Message returns the last success message reported by the backend.
func (w *Workflow) Message() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.message
}

// RequestOTP sends a code to email and moves EmailEntry → OtpPending,
// starting the resend countdown.
func (w *Workflow) RequestOTP(ctx context.Context, email string) error {
	defer w.notify(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage != StageEmailEntry {
		return stageError("request otp", w.stage, StageEmailEntry)
	}
	email = strings.TrimSpace(email)
	if err := w.validate.Email(email); err != nil {
		return err
	}

	msg, err := w.backend.SendOTP(ctx, email)
	if err != nil {
		return err
	}

	w.email = email
	w.message = msg
	w.startTimer(ctx)
	w.transition(StageOtpPending)
	return nil
}

// ResendOTP issues a new code once the countdown reached zero and restarts it.
// While the countdown runs it returns ErrResendDisabled without calling the backend.
func (w *Workflow) ResendOTP(ctx context.Context, email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage != StageOtpPending {
		return stageError("resend otp", w.stage, StageOtpPending)
	}
	if err := w.checkEmail(email); err != nil {
		return err
	}
	remaining, err := w.remaining(ctx)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return fmt.Errorf("%w: retry in %ds", ErrResendDisabled, remaining)
	}

	msg, err := w.backend.ResendOTP(ctx, w.email)
	if err != nil {
		return err
	}
	w.message = msg
	w.startTimer(ctx)
	return nil
}

// VerifyOTP confirms code and moves OtpPending → DetailsEntry, clearing the
// countdown. A rejected code leaves the stage unchanged and returns an error
// matching ErrInvalidOTP.
func (w *Workflow) VerifyOTP(ctx context.Context, email, code string) error {
	defer w.notify(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage != StageOtpPending {
		return stageError("verify otp", w.stage, StageOtpPending)
	}
	if err := w.checkEmail(email); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if err := w.validate.OTP(code); err != nil {
		return err
	}

	ok, err := w.backend.VerifyOTP(ctx, w.email, code)
	if err != nil {
		if isClientError(err) {
			return fmt.Errorf("%w: %v", ErrInvalidOTP, err)
		}
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}

	w.clearTimer(ctx)
	w.message = "email verified"
	w.transition(StageDetailsEntry)
	return nil
}

// SubmitDetails validates d, submits it and moves DetailsEntry → KycUpload,
// recording the application id returned by the backend.
func (w *Workflow) SubmitDetails(ctx context.Context, d models.PersonalDetails) (*models.ApplicationRecord, error) {
	defer w.notify(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage != StageDetailsEntry {
		return nil, stageError("submit details", w.stage, StageDetailsEntry)
	}
	d = trimDetails(d)
	if err := w.validate.Details(d); err != nil {
		return nil, err
	}
	if d.Email == "" {
		d.Email = w.email
	}

	app, err := w.backend.Apply(ctx, d)
	if err != nil {
		return nil, err
	}

	w.details = &d
	w.applicationID = app.ID
	w.message = fmt.Sprintf("application %d submitted", app.ID)
	w.transition(StageKycUpload)
	return app, nil
}

// UploadKYC uploads the three KYC images for applicationID and moves
// KycUpload → Submitted. All three files must be present.
func (w *Workflow) UploadKYC(ctx context.Context, applicationID int64, docs models.KYCDocuments) error {
	defer w.notify(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stage != StageKycUpload {
		return stageError("upload kyc", w.stage, StageKycUpload)
	}
	if applicationID == 0 {
		applicationID = w.applicationID
	}
	if applicationID != w.applicationID {
		return newValidationError("applicationId", fmt.Sprintf("does not match current application %d", w.applicationID))
	}
	if missing := docs.Missing(); len(missing) > 0 {
		verr := &ValidationError{Fields: make(map[string]string, len(missing))}
		for _, d := range missing {
			verr.Fields[models.FormField(d)] = fieldMessages["required"]
		}
		return verr
	}

	msg, err := w.backend.UploadKYC(ctx, applicationID, docs)
	if err != nil {
		return err
	}
	w.message = msg
	w.transition(StageSubmitted)
	return nil
}

// GoBack returns to the immediately preceding stage and drops the state
// that belonged to the stage being left.
func (w *Workflow) GoBack(ctx context.Context) error {
	defer w.notify(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.stage {
	case StageOtpPending:
		w.clearTimer(ctx)
		w.transition(StageEmailEntry)
	case StageDetailsEntry:
		w.transition(StageOtpPending)
	case StageKycUpload:
		w.applicationID = 0
		w.transition(StageDetailsEntry)
	case StageEmailEntry, StageSubmitted:
		return fmt.Errorf("go back from %s: %w", w.stage, ErrNoPreviousStage)
	default:
		return fmt.Errorf("go back from %s: %w", w.stage, ErrWrongStage)
	}
	w.message = ""
	return nil
}

// Discard abandons the flow: the countdown is cleared and the workflow
// returns to EmailEntry with no data.
func (w *Workflow) Discard(ctx context.Context) {
	defer w.notify(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.clearTimer(ctx)
	w.email = ""
	w.details = nil
	w.applicationID = 0
	w.message = ""
	w.transition(StageEmailEntry)
}

// ResendRemaining returns the whole seconds left before resend is allowed,
// computed from the stored absolute expiry.
func (w *Workflow) ResendRemaining(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remaining(ctx)
}

// CanResend reports whether ResendOTP would reach the backend.
func (w *Workflow) CanResend(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage != StageOtpPending {
		return false, nil
	}
	remaining, err := w.remaining(ctx)
	return remaining == 0, err
}

// Snapshot is the durable part of a Workflow, used to resume after a restart.
type Snapshot struct {
	Stage         Stage                   `json:"stage"`
	Email         string                  `json:"email,omitempty"`
	Details       *models.PersonalDetails `json:"details,omitempty"`
	ApplicationID int64                   `json:"applicationId,omitempty"`
}

// Snapshot captures the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

func (w *Workflow) snapshot() Snapshot {
	s := Snapshot{Stage: w.stage, Email: w.email, ApplicationID: w.applicationID}
	if w.details != nil {
		d := *w.details
		s.Details = &d
	}
	return s
}

// Restore replaces the state with s. Inconsistent snapshots are refused.
func (w *Workflow) Restore(s Snapshot) error {
	if s.Stage < StageEmailEntry || s.Stage > StageSubmitted {
		return fmt.Errorf("restore: unknown stage %d", int(s.Stage))
	}
	if s.Stage >= StageOtpPending && s.Email == "" {
		return fmt.Errorf("restore: stage %s requires an email", s.Stage)
	}
	if (s.Stage >= StageKycUpload) != (s.ApplicationID != 0) {
		return fmt.Errorf("restore: stage %s inconsistent with application id %d", s.Stage, s.ApplicationID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stage = s.Stage
	w.email = s.Email
	w.applicationID = s.ApplicationID
	w.details = nil
	if s.Details != nil {
		d := *s.Details
		w.details = &d
	}
	return nil
}

// Details returns a copy of the last accepted personal details, if any.
func (w *Workflow) Details() *models.PersonalDetails {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.details == nil {
		return nil
	}
	d := *w.details
	return &d
}

func trimDetails(d models.PersonalDetails) models.PersonalDetails {
	for _, f := range []*string{
		&d.FullName, &d.FatherName, &d.Mobile, &d.DOB, &d.Address,
		&d.Aadhaar, &d.PAN, &d.State, &d.Branch, &d.Email,
	} {
		*f = strings.TrimSpace(*f)
	}
	return d
}

func (w *Workflow) checkEmail(email string) error {
	email = strings.TrimSpace(email)
	if email != "" && !strings.EqualFold(email, w.email) {
		return newValidationError("email", "does not match the address the code was sent to")
	}
	return nil
}

func (w *Workflow) remaining(ctx context.Context) (int, error) {
	st, err := w.timers.LoadTimer(ctx, w.timerKey)
	if err != nil {
		return 0, fmt.Errorf("load otp timer: %w", err)
	}
	return remainingSeconds(st, w.now()), nil
}

// startTimer persists a fresh countdown. A storage failure is logged and
// leaves resend immediately available.
func (w *Workflow) startTimer(ctx context.Context) {
	st := models.TimerState{ExpiryTime: w.now().Add(w.window).UnixMilli()}
	if err := w.timers.SaveTimer(ctx, w.timerKey, st); err != nil {
		w.log.Error("failed to persist otp timer", zap.String("key", w.timerKey), zap.Error(err))
	}
}

func (w *Workflow) clearTimer(ctx context.Context) {
	if err := w.timers.DeleteTimer(ctx, w.timerKey); err != nil {
		w.log.Error("failed to clear otp timer", zap.String("key", w.timerKey), zap.Error(err))
	}
}

func (w *Workflow) transition(to Stage) {
	w.log.Info("onboarding stage changed",
		zap.Stringer("from", w.stage),
		zap.Stringer("to", to),
		zap.String("timer_key", w.timerKey))
	w.stage = to
	w.changed = true
}

// notify hands the post-transition snapshot to the hook. It must be
// deferred before the lock is taken so that it runs after the unlock.
func (w *Workflow) notify(ctx context.Context) {
	w.mu.Lock()
	if !w.changed || w.onTransition == nil {
		w.changed = false
		w.mu.Unlock()
		return
	}
	w.changed = false
	s := w.snapshot()
	w.mu.Unlock()
	w.onTransition(ctx, s)
}

// isClientError reports whether err says the backend refused the request
// itself rather than failing.
func isClientError(err error) bool {
	var ce interface{ IsClientError() bool }
	return errors.As(err, &ce) && ce.IsClientError()
}
