package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/atinyakov/GophBank/internal/middleware"
	"github.com/atinyakov/GophBank/internal/models"
	"github.com/atinyakov/GophBank/internal/onboarding"
	"github.com/atinyakov/GophBank/internal/service"
	"go.uber.org/zap"
)

// maxUploadSize bounds the multipart KYC request.
const maxUploadSize = 32 << 20

// OnboardingHandler exposes the session's workflow.
type OnboardingHandler struct {
	Log *zap.Logger
}

type stateResponse struct {
	Stage         onboarding.Stage `json:"stage"`
	Email         string           `json:"email,omitempty"`
	ApplicationID int64            `json:"applicationId,omitempty"`
	ResendIn      int              `json:"resendIn"`
	CanResend     bool             `json:"canResend"`
	Message       string           `json:"message,omitempty"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func workflowFrom(r *http.Request) (*onboarding.Workflow, error) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		return nil, service.ErrSessionNotFound
	}
	return sess.Workflow, nil
}

func (h *OnboardingHandler) respondState(w http.ResponseWriter, r *http.Request, wf *onboarding.Workflow, status int) {
	remaining, err := wf.ResendRemaining(r.Context())
	if err != nil && h.Log != nil {
		h.Log.Warn("read otp timer", zap.Error(err))
	}
	writeJSON(w, status, stateResponse{
		Stage:         wf.Stage(),
		Email:         wf.Email(),
		ApplicationID: wf.ApplicationID(),
		ResendIn:      remaining,
		CanResend:     wf.Stage() == onboarding.StageOtpPending && remaining == 0,
		Message:       wf.Message(),
	})
}

// State handles GET /api/onboarding.
func (h *OnboardingHandler) State(w http.ResponseWriter, r *http.Request) {
	wf, err := workflowFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, wf, http.StatusOK)
}

func decodeOTPRequest(r *http.Request) (otpRequest, error) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, &onboarding.ValidationError{Fields: map[string]string{"body": "invalid JSON"}}
	}
	return req, nil
}

// RequestOTP handles POST /api/onboarding/otp.
func (h *OnboardingHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	h.otpCall(w, r, func(wf *onboarding.Workflow, req otpRequest) error {
		return wf.RequestOTP(r.Context(), req.Email)
	})
}

// ResendOTP handles POST /api/onboarding/otp/resend.
func (h *OnboardingHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	h.otpCall(w, r, func(wf *onboarding.Workflow, req otpRequest) error {
		return wf.ResendOTP(r.Context(), req.Email)
	})
}

// VerifyOTP handles POST /api/onboarding/otp/verify.
func (h *OnboardingHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	h.otpCall(w, r, func(wf *onboarding.Workflow, req otpRequest) error {
		return wf.VerifyOTP(r.Context(), req.Email, req.OTP)
	})
}

func (h *OnboardingHandler) otpCall(w http.ResponseWriter, r *http.Request, call func(*onboarding.Workflow, otpRequest) error) {
	wf, err := workflowFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeOTPRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := call(wf, req); err != nil {
		if errors.Is(err, onboarding.ErrResendDisabled) {
			if remaining, rerr := wf.ResendRemaining(r.Context()); rerr == nil {
				w.Header().Set("Retry-After", strconv.Itoa(remaining))
			}
		}
		writeError(w, err)
		return
	}
	h.respondState(w, r, wf, http.StatusOK)
}

// SubmitDetails handles POST /api/onboarding/details.
func (h *OnboardingHandler) SubmitDetails(w http.ResponseWriter, r *http.Request) {
	wf, err := workflowFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var d models.PersonalDetails
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, &onboarding.ValidationError{Fields: map[string]string{"body": "invalid JSON"}})
		return
	}
	if _, err := wf.SubmitDetails(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, wf, http.StatusCreated)
}

// UploadKYC handles the multipart POST /api/onboarding/kyc with the
// profileImage, aadhaarImage and panImage parts and an optional applicationId.
func (h *OnboardingHandler) UploadKYC(w http.ResponseWriter, r *http.Request) {
	wf, err := workflowFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, &onboarding.ValidationError{Fields: map[string]string{"body": "invalid multipart form"}})
		return
	}

	var appID int64
	if v := r.FormValue("applicationId"); v != "" {
		if appID, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, &onboarding.ValidationError{Fields: map[string]string{"applicationId": "must be a number"}})
			return
		}
	}

	var docs models.KYCDocuments
	for _, d := range models.DocumentTypes {
		f, err := formFile(r, models.FormField(d))
		if err != nil {
			writeError(w, err)
			return
		}
		switch d {
		case models.ProfileDocument:
			docs.Profile = f
		case models.AadhaarDocument:
			docs.Aadhaar = f
		case models.PANDocument:
			docs.PAN = f
		}
	}

	if err := wf.UploadKYC(r.Context(), appID, docs); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, wf, http.StatusOK)
}

// formFile reads one multipart file. A missing part yields nil so the
// workflow can report every missing document at once.
func formFile(r *http.Request, field string) (*models.KYCFile, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return &models.KYCFile{Filename: hdr.Filename, Data: data}, nil
}

// Back handles POST /api/onboarding/back.
func (h *OnboardingHandler) Back(w http.ResponseWriter, r *http.Request) {
	wf, err := workflowFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := wf.GoBack(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.respondState(w, r, wf, http.StatusOK)
}
