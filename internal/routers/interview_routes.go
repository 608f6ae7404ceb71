package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"peerprep/interview/internal/handlers"
	"peerprep/interview/internal/middleware"
	"peerprep/interview/internal/models"
)

// RateLimits are applied per client IP. A nil limiter disables that limit.
type RateLimits struct {
	Global     *middleware.RateLimiter
	VerifyFace *middleware.RateLimiter
	Violations *middleware.RateLimiter
}

func InterviewRoutes(router *chi.Mux, jwtSecret string, interviewHandler *handlers.InterviewHandler, proctoringHandler *handlers.ProctoringHandler, limits RateLimits) {
	router.Route("/api/v1/interview", func(r chi.Router) {
		r.Use(middleware.Auth(jwtSecret))
		r.Use(limit(limits.Global))

		r.With(middleware.ValidateRequest[*models.StartInterviewRequest]()).Post("/start", interviewHandler.StartInterview)
		r.Get("/session/{sessionId}", interviewHandler.GetSession)
		r.With(middleware.ValidateRequest[*models.SubmitAnswerRequest]()).Post("/answer", interviewHandler.SubmitAnswer)
		r.With(middleware.ValidateRequest[*models.BodyLanguageRequest]()).Post("/body-language", interviewHandler.SaveBodyLanguage)

		r.With(middleware.ValidateRequest[*models.FinishInterviewRequest]()).Post("/finish", proctoringHandler.FinishInterview)
		r.With(limit(limits.VerifyFace), middleware.ValidateRequest[*models.VerifyFaceRequest]()).Post("/verify-face", proctoringHandler.VerifyFace)
		r.With(limit(limits.Violations), middleware.ValidateRequest[*models.LogViolationRequest]()).Post("/log-violation", proctoringHandler.LogViolation)
		r.Get("/violations/{sessionId}", proctoringHandler.GetViolations)
		r.With(middleware.ValidateRequest[*models.DetectCheatingRequest]()).Post("/detect-cheating", proctoringHandler.DetectCheating)
		r.With(middleware.ValidateRequest[*models.EnrollFaceRequest]()).Post("/enroll-face", proctoringHandler.EnrollFace)
	})
}

func limit(l *middleware.RateLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Handler
}
