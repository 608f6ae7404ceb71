package proctoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"peerprep/interview/internal/models"
)

// ChannelInterviewFinalized announces finalized sessions.
const ChannelInterviewFinalized = "interview_finalized"

const (
	maxScorePerQuestion = 10
	finalizeAttempts    = 3
)

type FinalizedEvent struct {
	SessionID         string    `json:"sessionId"`
	UserID            string    `json:"userId"`
	Role              string    `json:"role"`
	TotalScore        int       `json:"totalScore"`
	OverallPercentage int       `json:"overallPercentage"`
	PenaltyPoints     int       `json:"penaltyPoints"`
	CheatingDetected  bool      `json:"cheatingDetected"`
	FinalizedAt       time.Time `json:"finalizedAt"`
}

// Projector reduces question scores and accumulated penalties into the final
// score. The write is conditional so the penalty is applied exactly once.
type Projector struct {
	sessions    SessionStore
	reports     ReportWriter
	events      EventPublisher
	maxEvidence int
	logger      *zap.Logger
	now         func() time.Time
}

func NewProjector(sessions SessionStore, reports ReportWriter, events EventPublisher, maxEvidence int, logger *zap.Logger) *Projector {
	if maxEvidence < 0 {
		maxEvidence = DefaultMaxEvidenceImages
	}
	return &Projector{
		sessions:    sessions,
		reports:     reports,
		events:      events,
		maxEvidence: maxEvidence,
		logger:      logger,
		now:         time.Now,
	}
}

// ComputeFinalScore is max(0, sum(scores) - penalty) with the percentage taken
// against ten points per question.
func ComputeFinalScore(questions []models.QuestionRecord, penaltyPoints int) (total, maxScore, percentage int) {
	sum := 0
	for _, q := range questions {
		sum += q.Score
	}
	total = sum - penaltyPoints
	if total < 0 {
		total = 0
	}
	maxScore = len(questions) * maxScorePerQuestion
	if maxScore == 0 {
		return total, 0, 0
	}
	percentage = int(math.Round(100 * float64(total) / float64(maxScore)))
	return total, maxScore, percentage
}

// Finalize writes the final score of sessionID. userID, when set, must own the
// session. Repeated calls return the stored result with AlreadyFinalized set.
func (p *Projector) Finalize(ctx context.Context, sessionID, userID string) (*models.FinalScore, error) {
	ctx, span := tracer.Start(ctx, "proctoring.FinalizeSessionScore")
	defer span.End()

	if !models.IsValidID(sessionID) {
		return nil, models.NewValidationError("sessionId", "invalid sessionId format")
	}

	for attempt := 0; attempt < finalizeAttempts; attempt++ {
		session, err := p.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if userID != "" && session.UserID.Hex() != userID {
			return nil, models.ErrSessionNotFound
		}
		if session.FinalizedAt != nil {
			return storedScore(session), nil
		}

		total, maxScore, pct := ComputeFinalScore(session.Questions, session.Cheating.PenaltyPoints)
		at := p.now().UTC()
		applied, err := p.sessions.FinalizeScore(ctx, session, total, pct, at)
		if err != nil {
			return nil, fmt.Errorf("finalize score: %w", err)
		}
		if !applied {
			// a concurrent incident, answer or finalize changed the session; reread
			continue
		}

		span.SetAttributes(attribute.Int("score.total", total), attribute.Int("score.penalty", session.Cheating.PenaltyPoints))

		session.TotalScore, session.OverallPercentage, session.IsCompleted, session.FinalizedAt = total, pct, true, &at
		p.afterFinalize(ctx, session, maxScore)

		p.logger.Info("Session finalized",
			zap.String("session_id", sessionID),
			zap.Int("total_score", total),
			zap.Int("penalty_points", session.Cheating.PenaltyPoints),
			zap.Int("percentage", pct))

		return &models.FinalScore{
			SessionID:         sessionID,
			TotalScore:        total,
			MaxScore:          maxScore,
			OverallPercentage: pct,
			PenaltyPoints:     session.Cheating.PenaltyPoints,
			QuestionCount:     len(session.Questions),
		}, nil
	}
	return nil, fmt.Errorf("finalize score: session %s kept changing after %d attempts", sessionID, finalizeAttempts)
}

func storedScore(s *models.InterviewSession) *models.FinalScore {
	return &models.FinalScore{
		SessionID:         s.ID.Hex(),
		TotalScore:        s.TotalScore,
		MaxScore:          len(s.Questions) * maxScorePerQuestion,
		OverallPercentage: s.OverallPercentage,
		PenaltyPoints:     s.Cheating.PenaltyPoints,
		QuestionCount:     len(s.Questions),
		AlreadyFinalized:  true,
	}
}

// afterFinalize writes the report and announces the result. Both are best effort.
func (p *Projector) afterFinalize(ctx context.Context, s *models.InterviewSession, maxScore int) {
	if p.reports != nil {
		if err := p.reports.UpsertReport(ctx, p.buildReport(s, maxScore)); err != nil {
			p.logger.Error("Failed to write interview report",
				zap.String("session_id", s.ID.Hex()),
				zap.Error(err))
		}
	}
	if p.events != nil {
		event := FinalizedEvent{
			SessionID:         s.ID.Hex(),
			UserID:            s.UserID.Hex(),
			Role:              s.Role,
			TotalScore:        s.TotalScore,
			OverallPercentage: s.OverallPercentage,
			PenaltyPoints:     s.Cheating.PenaltyPoints,
			CheatingDetected:  s.Cheating.IsDetected,
			FinalizedAt:       *s.FinalizedAt,
		}
		if err := p.events.Publish(ctx, ChannelInterviewFinalized, event); err != nil {
			p.logger.Warn("Failed to publish finalized event",
				zap.String("session_id", s.ID.Hex()),
				zap.Error(err))
		}
	}
}

func (p *Projector) buildReport(s *models.InterviewSession, maxScore int) *models.InterviewReport {
	scores := make([]int, len(s.Questions))
	for i, q := range s.Questions {
		scores[i] = q.Score
	}

	images := []string{}
	for _, inc := range s.Cheating.Incidents {
		if len(images) >= p.maxEvidence {
			break
		}
		if inc.ImageURL != "" {
			images = append(images, inc.ImageURL)
		}
	}

	return &models.InterviewReport{
		UserID:            s.UserID,
		SessionID:         s.ID,
		Role:              s.Role,
		TotalScore:        s.TotalScore,
		MaxScore:          maxScore,
		OverallPercentage: s.OverallPercentage,
		QuestionScores:    scores,
		BodyLanguage:      s.BodyLanguage,
		Cheating: models.CheatingSummary{
			IsDetected:        s.Cheating.IsDetected,
			IncidentCount:     s.Cheating.IncidentCount,
			PenaltyPoints:     s.Cheating.PenaltyPoints,
			FaceMismatchCount: s.Cheating.FaceMismatchCount,
			EvidenceImages:    images,
		},
		CreatedAt: *s.FinalizedAt,
	}
}
