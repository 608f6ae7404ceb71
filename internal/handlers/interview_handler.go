package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"peerprep/interview/internal/interview"
	"peerprep/interview/internal/middleware"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/utils"
)

type InterviewService interface {
	Start(ctx context.Context, userID string, req models.StartInterviewRequest) (*models.InterviewSession, error)
	GetSession(ctx context.Context, sessionID, userID string) (*models.InterviewSession, error)
	SubmitAnswer(ctx context.Context, userID string, req models.SubmitAnswerRequest) (*interview.AnswerResult, error)
	SaveBodyLanguage(ctx context.Context, userID string, req models.BodyLanguageRequest) (*models.BodyLanguage, error)
}

type InterviewHandler struct {
	service InterviewService
	logger  *zap.Logger
}

func NewInterviewHandler(service InterviewService, logger *zap.Logger) *InterviewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterviewHandler{service: service, logger: logger}
}

// StartInterview handles POST /api/v1/interview/start
func (h *InterviewHandler) StartInterview(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.StartInterviewRequest](r)
	userID := middleware.UserID(r)

	session, err := h.service.Start(r.Context(), userID, *req)
	if err != nil {
		writeServiceError(w, h.logger, "start_interview", err, zap.String("user_id", userID))
		return
	}
	utils.JSON(w, http.StatusCreated, session)
}

// GetSession handles GET /api/v1/interview/session/{sessionId}
func (h *InterviewHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	userID := middleware.UserID(r)

	session, err := h.service.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		writeServiceError(w, h.logger, "get_session", err,
			zap.String("session_id", sessionID), zap.String("user_id", userID))
		return
	}
	utils.JSON(w, http.StatusOK, session)
}

// SubmitAnswer handles POST /api/v1/interview/answer
func (h *InterviewHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.SubmitAnswerRequest](r)
	userID := middleware.UserID(r)

	res, err := h.service.SubmitAnswer(r.Context(), userID, *req)
	if err != nil {
		writeServiceError(w, h.logger, "submit_answer", err,
			zap.String("session_id", req.SessionID), zap.String("user_id", userID))
		return
	}
	utils.JSON(w, http.StatusOK, res)
}

// SaveBodyLanguage handles POST /api/v1/interview/body-language
func (h *InterviewHandler) SaveBodyLanguage(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.BodyLanguageRequest](r)
	userID := middleware.UserID(r)

	bl, err := h.service.SaveBodyLanguage(r.Context(), userID, *req)
	if err != nil {
		writeServiceError(w, h.logger, "save_body_language", err,
			zap.String("session_id", req.SessionID), zap.String("user_id", userID))
		return
	}
	utils.JSON(w, http.StatusOK, bl)
}
