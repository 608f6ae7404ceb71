package models

import (
	"math"
	"strings"
)

type VerifyFaceRequest struct {
	UserID        string    `json:"userId"`
	SessionID     string    `json:"sessionId"`
	FaceEmbedding []float64 `json:"faceEmbedding"`
	Embedding     []float64 `json:"embedding"`
}

// implements the Validator interface
func (r *VerifyFaceRequest) Validate() error {
	if len(r.FaceEmbedding) == 0 {
		r.FaceEmbedding = r.Embedding
	}
	if len(r.FaceEmbedding) == 0 {
		return fieldError("missing_embedding", "faceEmbedding", "faceEmbedding is required")
	}
	if r.SessionID != "" && !IsValidID(r.SessionID) {
		return fieldError("invalid_session_id", "sessionId", "sessionId is not a valid id")
	}
	return nil
}

type LogViolationRequest struct {
	UserID        string `json:"userId"`
	InterviewID   string `json:"interviewId"`
	ViolationType string `json:"violationType"`
	ActionTaken   string `json:"actionTaken"`
	Screenshot    string `json:"screenshot"`
	ScreenshotURL string `json:"screenshotUrl"`
	EventID       string `json:"eventId"`
}

func (r *LogViolationRequest) Validate() error {
	if strings.TrimSpace(r.InterviewID) == "" {
		return fieldError("missing_interview_id", "interviewId", "interviewId is required")
	}
	if strings.TrimSpace(r.ViolationType) == "" {
		return fieldError("missing_violation_type", "violationType", "violationType is required")
	}
	if strings.TrimSpace(r.ActionTaken) == "" {
		return fieldError("missing_action_taken", "actionTaken", "actionTaken is required")
	}
	if len(r.EventID) > 128 {
		return fieldError("invalid_event_id", "eventId", "eventId must be at most 128 characters")
	}
	return nil
}

type DetectCheatingRequest struct {
	SessionID string `json:"sessionId"`
	Image     string `json:"image"`
}

func (r *DetectCheatingRequest) Validate() error {
	if r.SessionID == "" {
		return fieldError("missing_session_id", "sessionId", "sessionId is required")
	}
	if r.Image == "" {
		return fieldError("missing_image", "image", "image is required")
	}
	return nil
}

type FinishInterviewRequest struct {
	SessionID string `json:"sessionId"`
}

func (r *FinishInterviewRequest) Validate() error {
	if r.SessionID == "" {
		return fieldError("missing_session_id", "sessionId", "sessionId is required")
	}
	return nil
}

type QuestionInput struct {
	Question    string `json:"question"`
	IdealAnswer string `json:"idealAnswer"`
}

type StartInterviewRequest struct {
	Role      string          `json:"role"`
	Questions []QuestionInput `json:"questions"`
}

func (r *StartInterviewRequest) Validate() error {
	if strings.TrimSpace(r.Role) == "" {
		return fieldError("missing_role", "role", "role is required")
	}
	if len(r.Questions) == 0 {
		return fieldError("missing_questions", "questions", "at least one question is required")
	}
	if len(r.Questions) > 50 {
		return fieldError("too_many_questions", "questions", "at most 50 questions are allowed")
	}
	for _, q := range r.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return fieldError("empty_question", "questions", "question text must not be empty")
		}
	}
	return nil
}

type SubmitAnswerRequest struct {
	SessionID string    `json:"sessionId"`
	Answer    string    `json:"answer"`
	Behavior  *Behavior `json:"behavior"`
}

func (r *SubmitAnswerRequest) Validate() error {
	if r.SessionID == "" {
		return fieldError("missing_session_id", "sessionId", "sessionId is required")
	}
	if strings.TrimSpace(r.Answer) == "" {
		return fieldError("missing_answer", "answer", "answer is required")
	}
	return nil
}

var validBehaviors = map[string]bool{
	"confident":  true,
	"nervous":    true,
	"distracted": true,
}

type BodyLanguageRequest struct {
	SessionID        string   `json:"sessionId"`
	EyeContact       *float64 `json:"eyeContact"`
	Engagement       *float64 `json:"engagement"`
	Attention        *float64 `json:"attention"`
	Stability        *float64 `json:"stability"`
	DominantBehavior string   `json:"dominantBehavior"`
	SampleCount      int      `json:"sampleCount"`
}

func (r *BodyLanguageRequest) Validate() error {
	if r.SessionID == "" {
		return fieldError("missing_session_id", "sessionId", "sessionId is required")
	}

	resp := &ErrorResponse{Code: "invalid_body_language", Message: "Invalid body language data"}
	scores := map[string]*float64{
		"eyeContact": r.EyeContact,
		"engagement": r.Engagement,
		"attention":  r.Attention,
		"stability":  r.Stability,
	}
	for field, v := range scores {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || *v < 0 || *v > 100 {
			resp.Details = append(resp.Details, ValidationErrorDetail{Field: field, Reason: "must be between 0 and 100"})
		}
	}
	if r.DominantBehavior != "" && !validBehaviors[r.DominantBehavior] {
		resp.Details = append(resp.Details, ValidationErrorDetail{Field: "dominantBehavior", Reason: "must be one of: confident, nervous, distracted"})
	}
	if r.SampleCount < 0 {
		resp.Details = append(resp.Details, ValidationErrorDetail{Field: "sampleCount", Reason: "must be non-negative"})
	}
	if len(resp.Details) > 0 {
		return resp
	}
	return nil
}

type EnrollFaceRequest struct {
	UserID        string    `json:"userId"`
	FaceEmbedding []float64 `json:"faceEmbedding"`
}

func (r *EnrollFaceRequest) Validate() error {
	if len(r.FaceEmbedding) == 0 {
		return fieldError("missing_embedding", "faceEmbedding", "faceEmbedding is required")
	}
	return nil
}
