// Package http provides the HTTP surface of the onboarding front-end:
// sessions, the applicant workflow and the admin review endpoints.
package http

import (
	"net/http"

	"github.com/atinyakov/GophBank/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the API handler.
//
// Routes:
//
//	POST   /api/sessions                          → sessions.Start
//	DELETE /api/sessions                          → sessions.End
//	GET    /api/onboarding                        → onboarding.State
//	POST   /api/onboarding/otp                    → onboarding.RequestOTP (rate limited)
//	POST   /api/onboarding/otp/resend             → onboarding.ResendOTP (rate limited)
//	POST   /api/onboarding/otp/verify             → onboarding.VerifyOTP (rate limited)
//	POST   /api/onboarding/details                → onboarding.SubmitDetails
//	POST   /api/onboarding/kyc                    → onboarding.UploadKYC (multipart)
//	POST   /api/onboarding/back                   → onboarding.Back
//	GET    /api/admin/applications                → admin.List
//	GET    /api/admin/applications/{id}/documents → admin.Documents
//	POST   /api/admin/applications/{id}/actions   → admin.Act
//
// Every route except POST /api/sessions requires an X-Session-ID header;
// the admin routes additionally require a session started with a token.
func NewRouter(
	sessions *SessionHandler,
	onboarding *OnboardingHandler,
	adminHandler *AdminHandler,
	store middleware.SessionStore,
	otpLimiter *middleware.RateLimiter,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", sessions.Start)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(store))
			r.Delete("/sessions", sessions.End)

			r.Route("/onboarding", func(r chi.Router) {
				r.Get("/", onboarding.State)
				r.With(chiMiddleware.AllowContentType("multipart/form-data")).
					Post("/kyc", onboarding.UploadKYC)

				r.Group(func(r chi.Router) {
					r.Use(chiMiddleware.AllowContentType("application/json"))
					r.Post("/details", onboarding.SubmitDetails)
					r.Post("/back", onboarding.Back)

					r.Group(func(r chi.Router) {
						if otpLimiter != nil {
							r.Use(otpLimiter.Handler)
						}
						r.Post("/otp", onboarding.RequestOTP)
						r.Post("/otp/resend", onboarding.ResendOTP)
						r.Post("/otp/verify", onboarding.VerifyOTP)
					})
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireToken)
				r.Get("/applications", adminHandler.List)
				r.Get("/applications/{id}/documents", adminHandler.Documents)
				r.With(chiMiddleware.AllowContentType("application/json")).
					Post("/applications/{id}/actions", adminHandler.Act)
			})
		})
	})

	return r
}
