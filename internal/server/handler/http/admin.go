package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/atinyakov/GophBank/internal/admin"
	"github.com/atinyakov/GophBank/internal/middleware"
	"github.com/atinyakov/GophBank/internal/models"
	"github.com/atinyakov/GophBank/internal/onboarding"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler serves the review endpoints through the session's reviewer.
type AdminHandler struct {
	Log *zap.Logger
}

type applicationView struct {
	models.ApplicationRecord
	CanApprove bool                  `json:"canApprove"`
	Unverified []models.DocumentType `json:"unverified"`
}

func newApplicationView(app models.ApplicationRecord) applicationView {
	unverified := admin.Unverified(app)
	if unverified == nil {
		unverified = []models.DocumentType{}
	}
	return applicationView{
		ApplicationRecord: app,
		CanApprove:        admin.CanApprove(app),
		Unverified:        unverified,
	}
}

type documentView struct {
	Type      models.DocumentType `json:"type"`
	Label     string              `json:"label"`
	Available bool                `json:"available"`
	DataURL   string              `json:"dataUrl,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type actionResponse struct {
	Message     string           `json:"message"`
	Application *applicationView `json:"application,omitempty"`
	Warning     string           `json:"warning,omitempty"`
}

func reviewerFrom(w http.ResponseWriter, r *http.Request) *admin.Reviewer {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil || sess.Reviewer == nil {
		http.Error(w, "admin token required", http.StatusForbidden)
		return nil
	}
	return sess.Reviewer
}

func applicationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, &onboarding.ValidationError{Fields: map[string]string{"id": "must be a positive number"}})
		return 0, false
	}
	return id, true
}

// List handles GET /api/admin/applications.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	rv := reviewerFrom(w, r)
	if rv == nil {
		return
	}
	apps, err := rv.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]applicationView, 0, len(apps))
	for _, app := range apps {
		out = append(out, newApplicationView(app))
	}
	writeJSON(w, http.StatusOK, out)
}

// Documents handles GET /api/admin/applications/{id}/documents. Images that
// fail to load are reported as unavailable without failing the request.
func (h *AdminHandler) Documents(w http.ResponseWriter, r *http.Request) {
	rv := reviewerFrom(w, r)
	if rv == nil {
		return
	}
	id, ok := applicationID(w, r)
	if !ok {
		return
	}
	app, err := rv.Application(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	images := rv.LoadDocuments(r.Context(), *app)
	out := make([]documentView, 0, len(images))
	for _, img := range images {
		v := documentView{
			Type:      img.Type,
			Label:     img.Type.Label(),
			Available: img.Available(),
			DataURL:   img.DataURL(),
		}
		if img.Err != nil {
			v.Error = img.Err.Error()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// Act handles POST /api/admin/applications/{id}/actions.
func (h *AdminHandler) Act(w http.ResponseWriter, r *http.Request) {
	rv := reviewerFrom(w, r)
	if rv == nil {
		return
	}
	id, ok := applicationID(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, err)
		return
	}
	action, err := admin.ParseAction(body)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := rv.Apply(r.Context(), id, action)
	if err != nil && res == nil {
		writeError(w, err)
		return
	}

	resp := actionResponse{Message: res.Message}
	if res.Application != nil {
		v := newApplicationView(*res.Application)
		resp.Application = &v
	}
	if err != nil {
		// the action went through; only the re-read failed
		if h.Log != nil {
			h.Log.Warn("admin refresh failed", zap.Int64("application_id", id), zap.Error(err))
		}
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
