package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"peerprep/interview/internal/models"
	"peerprep/interview/internal/scoring"
)

var tracer = otel.Tracer("peerprep/interview/interview")

// Store is the session persistence the interview flow needs.
type Store interface {
	Create(ctx context.Context, s *models.InterviewSession) (*models.InterviewSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	SaveAnswer(ctx context.Context, sessionID string, index int, q models.QuestionRecord) (*models.InterviewSession, error)
	SetBodyLanguage(ctx context.Context, sessionID, userID string, bl models.BodyLanguage) error
}

type Scorer interface {
	Evaluate(ctx context.Context, in scoring.AnswerInput) scoring.Evaluation
}

type AnswerResult struct {
	QuestionIndex  int     `json:"questionIndex"`
	Score          int     `json:"score"`
	Feedback       string  `json:"feedback"`
	AnsweredCount  int     `json:"answeredCount"`
	TotalQuestions int     `json:"totalQuestions"`
	IsLastQuestion bool    `json:"isLastQuestion"`
	NextQuestion   *string `json:"nextQuestion"`
}

type Service struct {
	store  Store
	scorer Scorer
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, scorer Scorer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, scorer: scorer, logger: logger, now: time.Now}
}

func (s *Service) Start(ctx context.Context, userID string, req models.StartInterviewRequest) (*models.InterviewSession, error) {
	ctx, span := tracer.Start(ctx, "interview.Start")
	defer span.End()

	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, models.NewValidationError("userId", "invalid userId format")
	}
	questions := make([]models.QuestionRecord, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, models.QuestionRecord{
			Question:    strings.TrimSpace(q.Question),
			IdealAnswer: strings.TrimSpace(q.IdealAnswer),
		})
	}

	session, err := s.store.Create(ctx, &models.InterviewSession{
		UserID:         uid,
		Role:           strings.TrimSpace(req.Role),
		TotalQuestions: len(questions),
		Questions:      questions,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", session.ID.Hex()))
	s.logger.Info("Interview started",
		zap.String("session_id", session.ID.Hex()),
		zap.String("user_id", userID),
		zap.String("role", session.Role),
		zap.Int("questions", len(questions)))
	return session, nil
}

// GetSession returns the session if userID owns it. Another user's session is
// reported as not found.
func (s *Service) GetSession(ctx context.Context, sessionID, userID string) (*models.InterviewSession, error) {
	if !models.IsValidID(sessionID) {
		return nil, models.NewValidationError("sessionId", "invalid sessionId format")
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && session.UserID.Hex() != userID {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

// SubmitAnswer scores the answer for the current question and advances the session.
func (s *Service) SubmitAnswer(ctx context.Context, userID string, req models.SubmitAnswerRequest) (*AnswerResult, error) {
	ctx, span := tracer.Start(ctx, "interview.SubmitAnswer")
	defer span.End()

	session, err := s.GetSession(ctx, req.SessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.FinalizedAt != nil || session.IsCompleted {
		return nil, models.ErrSessionCompleted
	}
	index := session.CurrentIndex
	if index >= len(session.Questions) {
		return nil, models.ErrSessionCompleted
	}
	q := session.Questions[index]

	ev := s.scorer.Evaluate(ctx, scoring.AnswerInput{
		Role:        session.Role,
		Question:    q.Question,
		IdealAnswer: q.IdealAnswer,
		Answer:      req.Answer,
		Behavioral:  isBehavioral(session.Role),
	})

	at := s.now().UTC()
	updated, err := s.store.SaveAnswer(ctx, req.SessionID, index, models.QuestionRecord{
		Answer:     req.Answer,
		Score:      ev.Score,
		Feedback:   ev.Feedback,
		Behavior:   req.Behavior,
		AnsweredAt: &at,
	})
	if err != nil {
		if errors.Is(err, models.ErrAnswerConflict) {
			s.logger.Warn("Answer raced with another submission",
				zap.String("session_id", req.SessionID),
				zap.Int("index", index))
		}
		return nil, err
	}

	res := &AnswerResult{
		QuestionIndex:  index,
		Score:          ev.Score,
		Feedback:       ev.Feedback,
		AnsweredCount:  updated.CurrentIndex,
		TotalQuestions: len(updated.Questions),
		IsLastQuestion: updated.CurrentIndex >= len(updated.Questions),
	}
	if !res.IsLastQuestion {
		next := updated.Questions[updated.CurrentIndex].Question
		res.NextQuestion = &next
	}
	s.logger.Info("Answer recorded",
		zap.String("session_id", req.SessionID),
		zap.Int("index", index),
		zap.Int("score", ev.Score),
		zap.Bool("fallback", ev.Fallback))
	return res, nil
}

// SaveBodyLanguage overwrites the session's body-language summary. A missing
// dominant behavior is derived from the scores.
func (s *Service) SaveBodyLanguage(ctx context.Context, userID string, req models.BodyLanguageRequest) (*models.BodyLanguage, error) {
	if !models.IsValidID(req.SessionID) {
		return nil, models.NewValidationError("sessionId", "invalid sessionId format")
	}
	bl := models.BodyLanguage{
		EyeContact:       value(req.EyeContact),
		Engagement:       value(req.Engagement),
		Attention:        value(req.Attention),
		Stability:        value(req.Stability),
		DominantBehavior: req.DominantBehavior,
		SampleCount:      req.SampleCount,
		LastUpdated:      s.now().UTC(),
	}
	if bl.DominantBehavior == "" {
		bl.DominantBehavior = DominantBehavior(bl.EyeContact, bl.Stability, bl.Attention)
	}
	if err := s.store.SetBodyLanguage(ctx, req.SessionID, userID, bl); err != nil {
		return nil, err
	}
	return &bl, nil
}

// DominantBehavior classifies body-language scores. Any missing score means
// there is not enough signal and the result is confident.
func DominantBehavior(eyeContact, stability, attention float64) string {
	if eyeContact == 0 || stability == 0 || attention == 0 {
		return "confident"
	}
	switch {
	case attention < 50:
		return "distracted"
	case stability < 50 || eyeContact < 50:
		return "nervous"
	}
	return "confident"
}

// OverallScore is the rounded mean of the four body-language scores.
func OverallScore(bl models.BodyLanguage) int {
	sum := bl.EyeContact + bl.Engagement + bl.Attention + bl.Stability
	return int(sum/4 + 0.5)
}

func isBehavioral(role string) bool {
	return strings.Contains(strings.ToLower(role), "behavio")
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
