package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"peerprep/interview/internal/middleware"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/proctoring"
	"peerprep/interview/internal/utils"
)

type ProctoringService interface {
	VerifyIdentity(ctx context.Context, sessionID, userID string, embedding []float64) (*models.VerifyResult, error)
	LogViolation(ctx context.Context, r proctoring.Report) (*models.LogResult, error)
	DetectAndRecord(ctx context.Context, sessionID, image string) (*models.IncidentResult, error)
	FinalizeSessionScore(ctx context.Context, sessionID, userID string) (*models.FinalScore, error)
	GetViolationHistory(ctx context.Context, sessionID string) ([]models.Violation, error)
	EnrollFace(ctx context.Context, userID string, embedding []float64) error
}

type ProctoringHandler struct {
	service ProctoringService
	logger  *zap.Logger
}

func NewProctoringHandler(service ProctoringService, logger *zap.Logger) *ProctoringHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProctoringHandler{service: service, logger: logger}
}

// resolveUserID prefers the id in the body and falls back to the token subject.
func resolveUserID(bodyID string, r *http.Request) string {
	if bodyID != "" {
		return bodyID
	}
	return middleware.UserID(r)
}

// VerifyFace handles POST /api/v1/interview/verify-face
func (h *ProctoringHandler) VerifyFace(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.VerifyFaceRequest](r)
	userID := resolveUserID(req.UserID, r)
	if userID == "" {
		missingUser(w)
		return
	}

	res, err := h.service.VerifyIdentity(r.Context(), req.SessionID, userID, req.FaceEmbedding)
	if err != nil {
		writeServiceError(w, h.logger, "verify_face", err,
			zap.String("session_id", req.SessionID), zap.String("user_id", userID))
		return
	}
	utils.JSON(w, http.StatusOK, res)
}

// LogViolation handles POST /api/v1/interview/log-violation
func (h *ProctoringHandler) LogViolation(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.LogViolationRequest](r)
	userID := resolveUserID(req.UserID, r)
	if userID == "" {
		missingUser(w)
		return
	}

	res, err := h.service.LogViolation(r.Context(), proctoring.Report{
		SessionID:     req.InterviewID,
		UserID:        userID,
		ViolationType: req.ViolationType,
		ActionTaken:   req.ActionTaken,
		Screenshot:    req.Screenshot,
		ScreenshotURL: req.ScreenshotURL,
		EventID:       req.EventID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "log_violation", err,
			zap.String("session_id", req.InterviewID), zap.String("user_id", userID))
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	utils.JSON(w, status, res)
}

// GetViolations handles GET /api/v1/interview/violations/{sessionId}
func (h *ProctoringHandler) GetViolations(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	violations, err := h.service.GetViolationHistory(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "violation_history", err, zap.String("session_id", sessionID))
		return
	}
	utils.JSON(w, http.StatusOK, models.ViolationHistoryResponse{
		Count:      len(violations),
		Violations: violations,
	})
}

// DetectCheating handles POST /api/v1/interview/detect-cheating
func (h *ProctoringHandler) DetectCheating(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.DetectCheatingRequest](r)

	res, err := h.service.DetectAndRecord(r.Context(), req.SessionID, req.Image)
	if err != nil {
		writeServiceError(w, h.logger, "detect_cheating", err, zap.String("session_id", req.SessionID))
		return
	}
	utils.JSON(w, http.StatusOK, res)
}

// EnrollFace handles POST /api/v1/interview/enroll-face
func (h *ProctoringHandler) EnrollFace(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.EnrollFaceRequest](r)
	userID := middleware.UserID(r)
	if userID == "" {
		missingUser(w)
		return
	}
	// Enrollment is only ever written for the authenticated caller.
	if req.UserID != "" && req.UserID != userID {
		h.logger.Warn("Rejected enrollment for another user",
			zap.String("user_id", userID), zap.String("requested_user_id", req.UserID))
		forbidden(w, "cannot enroll a face for another user")
		return
	}

	if err := h.service.EnrollFace(r.Context(), userID, req.FaceEmbedding); err != nil {
		writeServiceError(w, h.logger, "enroll_face", err, zap.String("user_id", userID))
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"enrolled":   true,
		"userId":     userID,
		"dimensions": len(req.FaceEmbedding),
	})
}

// FinishInterview handles POST /api/v1/interview/finish
func (h *ProctoringHandler) FinishInterview(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.FinishInterviewRequest](r)
	userID := middleware.UserID(r)

	score, err := h.service.FinalizeSessionScore(r.Context(), req.SessionID, userID)
	if err != nil {
		writeServiceError(w, h.logger, "finish_interview", err,
			zap.String("session_id", req.SessionID), zap.String("user_id", userID))
		return
	}
	utils.JSON(w, http.StatusOK, score)
}
