package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/atinyakov/GophBank/internal/client/storage"
	"github.com/atinyakov/GophBank/internal/client/watch"
	"github.com/atinyakov/GophBank/internal/models"
	"github.com/atinyakov/GophBank/internal/onboarding"
	"go.uber.org/zap"
)

const shellHelp = `Available commands:
  otp <email>     send a one-time code
  resend          send a new code once the countdown is over
  verify <code>   confirm the code
  details         enter personal details
  upload          attach profile, Aadhaar and PAN images
  back            return to the previous step
  status          show the current step
  timer           follow the resend countdown (Ctrl+C to stop)
  watch           follow the review of the submitted application
  discard         forget this application and start over
  exit`

// shellBackend is what the onboarding shell calls on the backend.
type shellBackend interface {
	onboarding.Backend
	watch.StatusSource
}

// shell is the applicant's interactive onboarding session.
type shell struct {
	backend shellBackend
	ls      *storage.LocalStorage
	wf      *onboarding.Workflow
	prompt  *storage.Prompter
	out     io.Writer
	log     *zap.Logger

	// draft is the last details form entered, accepted or not.
	draft *models.PersonalDetails
}

func newShell(b shellBackend, ls *storage.LocalStorage, log *zap.Logger, in io.Reader, out io.Writer) *shell {
	s := &shell{
		backend: b,
		ls:      ls,
		wf:      onboarding.New(b, ls, onboarding.WithLogger(log)),
		prompt:  storage.NewPrompter(in, out),
		out:     out,
		log:     log,
	}
	snap, err := ls.LoadSession()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Saved session unreadable, starting over: %v\n", err)
	case snap != nil:
		if err := s.wf.Restore(*snap); err != nil {
			fmt.Fprintf(out, "Saved session discarded: %v\n", err)
		} else {
			fmt.Fprintf(out, "Resuming at %s\n", snap.Stage)
		}
	}
	return s
}

// run reads commands until exit or EOF.
func (s *shell) run() {
	ctx := context.Background()
	for {
		line := s.prompt.Ask("gophbank> ")
		if line == "" {
			if s.prompt.Done() {
				return
			}
			continue
		}
		if !s.exec(ctx, strings.Fields(line)) {
			return
		}
	}
}

// exec runs one command and reports whether the shell should continue.
func (s *shell) exec(ctx context.Context, args []string) bool {
	var err error
	switch args[0] {
	case "help":
		fmt.Fprintln(s.out, shellHelp)
		return true
	case "otp":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: otp <email>")
			return true
		}
		err = s.wf.RequestOTP(ctx, args[1])
	case "resend":
		err = s.wf.ResendOTP(ctx, "")
	case "verify":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: verify <code>")
			return true
		}
		err = s.wf.VerifyOTP(ctx, "", args[1])
	case "details":
		if s.wf.Stage() != onboarding.StageDetailsEntry {
			err = fmt.Errorf("details: %w", onboarding.ErrWrongStage)
			break
		}
		prev := s.wf.Details()
		if prev == nil {
			prev = s.draft
		}
		d := s.prompt.PromptDetails(prev)
		s.draft = &d
		_, err = s.wf.SubmitDetails(ctx, d)
	case "upload":
		if s.wf.Stage() != onboarding.StageKycUpload {
			err = fmt.Errorf("upload: %w", onboarding.ErrWrongStage)
			break
		}
		err = s.wf.UploadKYC(ctx, 0, s.prompt.PromptKYCFiles())
	case "back":
		err = s.wf.GoBack(ctx)
	case "status":
		s.status(ctx)
		return true
	case "timer":
		err = s.timer(ctx)
	case "watch":
		err = s.watch(ctx)
	case "discard":
		s.wf.Discard(ctx)
		s.draft = nil
		if err := s.ls.ClearSession(); err != nil {
			fmt.Fprintln(s.out, describe(err))
			return true
		}
		fmt.Fprintln(s.out, "Application discarded")
		return true
	case "exit":
		fmt.Fprintln(s.out, "Bye")
		return false
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
		return true
	}

	if err != nil {
		fmt.Fprintln(s.out, describe(err))
		return true
	}
	if msg := s.wf.Message(); msg != "" {
		fmt.Fprintln(s.out, msg)
	}
	s.save()
	s.status(ctx)
	return true
}

func (s *shell) save() {
	if err := s.ls.SaveSession(s.wf.Snapshot()); err != nil {
		s.log.Warn("failed to save session", zap.Error(err))
	}
}

func (s *shell) status(ctx context.Context) {
	fmt.Fprintf(s.out, "Step: %s\n", s.wf.Stage())
	if email := s.wf.Email(); email != "" {
		fmt.Fprintf(s.out, "Email: %s\n", email)
	}
	if id := s.wf.ApplicationID(); id != 0 {
		fmt.Fprintf(s.out, "Application: %d\n", id)
	}
	if s.wf.Stage() == onboarding.StageOtpPending {
		remaining, err := s.wf.ResendRemaining(ctx)
		switch {
		case err != nil:
			fmt.Fprintln(s.out, describe(err))
		case remaining > 0:
			fmt.Fprintf(s.out, "Resend available in %ds\n", remaining)
		default:
			fmt.Fprintln(s.out, "Resend available")
		}
	}
}

func (s *shell) timer(ctx context.Context) error {
	if s.wf.Stage() != onboarding.StageOtpPending {
		return fmt.Errorf("timer: %w", onboarding.ErrWrongStage)
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := onboarding.Countdown(ctx, s.wf, func(remaining int) {
		if remaining > 0 {
			fmt.Fprintf(s.out, "\rResend available in %3ds", remaining)
		} else {
			fmt.Fprint(s.out, "\rResend available        ")
		}
	})
	fmt.Fprintln(s.out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *shell) watch(ctx context.Context) error {
	id := s.wf.ApplicationID()
	if id == 0 || s.wf.Stage() != onboarding.StageSubmitted {
		return errors.New("watch: no submitted application")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	_, err := watch.Application(ctx, s.backend, id, watch.DefaultInterval, s.log, func(app models.ApplicationRecord) {
		fmt.Fprintf(s.out, "Application %d: %s (Aadhaar verified: %t, PAN verified: %t)\n",
			app.ID, app.Status, app.AadhaarVerified, app.PANVerified)
		if app.RejectionReason != "" {
			fmt.Fprintf(s.out, "Reason: %s\n", app.RejectionReason)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// describe renders an error for the terminal, one line per invalid field.
func describe(err error) string {
	var verr *onboarding.ValidationError
	if !errors.As(err, &verr) {
		return "Error: " + err.Error()
	}
	fields := make([]string, 0, len(verr.Fields))
	for f := range verr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("Please fix:")
	for _, f := range fields {
		fmt.Fprintf(&b, "\n  %s %s", f, verr.Fields[f])
	}
	return b.String()
}
