package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"peerprep/interview/internal/models"
	"peerprep/interview/internal/utils"
)

// writeServiceError maps a service error onto its HTTP status. Anything
// unrecognised is logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error, fields ...zap.Field) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.JSON(w, http.StatusBadRequest, models.ErrorResponse{
			Code:    "invalid_input",
			Message: verr.Reason,
			Details: []models.ValidationErrorDetail{{Field: verr.Field, Reason: verr.Reason}},
		})
	case errors.Is(err, models.ErrInvalidInput):
		utils.JSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "invalid_input", Message: err.Error()})
	case errors.Is(err, models.ErrSessionNotFound):
		utils.JSON(w, http.StatusNotFound, models.ErrorResponse{Code: "session_not_found", Message: "Interview session not found"})
	case errors.Is(err, models.ErrUserNotFound):
		utils.JSON(w, http.StatusNotFound, models.ErrorResponse{Code: "user_not_found", Message: "User not found"})
	case errors.Is(err, models.ErrEnrollmentMissing):
		utils.JSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Code: "enrollment_missing", Message: "No face enrollment on record for this user"})
	case errors.Is(err, models.ErrSessionCompleted):
		utils.JSON(w, http.StatusConflict, models.ErrorResponse{Code: "session_completed", Message: "Interview session is already completed"})
	case errors.Is(err, models.ErrAnswerConflict):
		utils.JSON(w, http.StatusConflict, models.ErrorResponse{Code: "answer_conflict", Message: "This question was already answered"})
	case errors.Is(err, models.ErrDependencyUnavailable):
		logger.Warn("Dependency unavailable", append(fields, zap.String("operation", op), zap.Error(err))...)
		utils.JSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Code: "dependency_unavailable", Message: "A required service is temporarily unavailable"})
	default:
		logger.Error("Request failed", append(fields, zap.String("operation", op), zap.Error(err))...)
		utils.JSON(w, http.StatusInternalServerError, models.ErrorResponse{Code: "internal_error", Message: "Internal server error"})
	}
}

func missingUser(w http.ResponseWriter) {
	utils.JSON(w, http.StatusBadRequest, models.ErrorResponse{
		Code:    "missing_user_id",
		Message: "userId is required",
		Details: []models.ValidationErrorDetail{{Field: "userId", Reason: "userId is required"}},
	})
}

func forbidden(w http.ResponseWriter, msg string) {
	utils.JSON(w, http.StatusForbidden, models.ErrorResponse{Code: "forbidden", Message: msg})
}
