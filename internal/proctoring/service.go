package proctoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"peerprep/interview/internal/evidence"
	"peerprep/interview/internal/metrics"
	"peerprep/interview/internal/models"
)

// Dependencies are the stores and adapters the proctoring service runs on.
// Cache, Evidence, Detector, Events and Reports may be nil.
type Dependencies struct {
	Sessions SessionStore
	Ledger   ViolationLedger
	Users    UserDirectory
	Cache    EmbeddingCache
	Evidence EvidenceStore
	Detector Detector
	Events   EventPublisher
	Reports  ReportWriter
	Logger   *zap.Logger
}

type Settings struct {
	MatchThreshold     float64
	StreakLimit        int
	PenaltyPerIncident int
	MaxEvidenceImages  int
	Policy             Policy
}

func DefaultSettings() Settings {
	return Settings{
		MatchThreshold:     DefaultMatchThreshold,
		StreakLimit:        DefaultStreakLimit,
		PenaltyPerIncident: DefaultPenaltyPerIncident,
		MaxEvidenceImages:  DefaultMaxEvidenceImages,
		Policy:             DefaultPolicy,
	}
}

// Service is the caller-facing proctoring API.
type Service struct {
	engine    *Engine
	verifier  *Verifier
	incidents *IncidentRecorder
	projector *Projector
	ledger    ViolationLedger
	users     UserDirectory
	cache     EmbeddingCache
	detector  Detector
	logger    *zap.Logger
}

func NewService(deps Dependencies, settings Settings) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:    NewEngine(deps.Sessions, deps.Ledger, deps.Users, deps.Evidence, deps.Events, settings.Policy, logger),
		verifier:  NewVerifier(deps.Sessions, deps.Users, deps.Cache, settings.MatchThreshold, settings.StreakLimit, logger),
		incidents: NewIncidentRecorder(deps.Sessions, deps.Evidence, settings.PenaltyPerIncident, settings.MaxEvidenceImages, logger),
		projector: NewProjector(deps.Sessions, deps.Reports, deps.Events, settings.MaxEvidenceImages, logger),
		ledger:    deps.Ledger,
		users:     deps.Users,
		cache:     deps.Cache,
		detector:  deps.Detector,
		logger:    logger,
	}
}

// VerifyIdentity checks the face embedding and, when the mismatch streak is
// confirmed, records a face_mismatch violation through the enforcement engine.
func (s *Service) VerifyIdentity(ctx context.Context, sessionID, userID string, embedding []float64) (*models.VerifyResult, error) {
	res, err := s.verifier.Verify(ctx, sessionID, userID, embedding)
	if err != nil {
		return nil, err
	}
	if !res.ConfirmedMismatch {
		return res, nil
	}

	logged, err := s.engine.RecordAndEvaluate(ctx, Report{
		SessionID:     sessionID,
		UserID:        userID,
		ViolationType: string(models.ViolationFaceMismatch),
		Source:        models.SourceIdentityCheck,
	})
	if err != nil {
		// the verification outcome stands even if the ledger write failed
		s.logger.Error("Failed to record confirmed identity mismatch",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.Error(err))
		return res, nil
	}
	res.Enforcement = logged
	return res, nil
}

func (s *Service) LogViolation(ctx context.Context, r Report) (*models.LogResult, error) {
	r.Source = models.SourceClient
	return s.engine.RecordAndEvaluate(ctx, r)
}

func (s *Service) RecordObjectDetectionIncident(ctx context.Context, sessionID string, det models.DetectionResult, rawImage []byte) (*models.IncidentResult, error) {
	return s.incidents.Record(ctx, sessionID, det, rawImage)
}

// DetectAndRecord sends a frame to the detection service and records the result.
func (s *Service) DetectAndRecord(ctx context.Context, sessionID, image string) (*models.IncidentResult, error) {
	if !models.IsValidID(sessionID) {
		return nil, models.NewValidationError("sessionId", "invalid sessionId format")
	}
	if s.detector == nil {
		return nil, models.ErrDependencyUnavailable
	}
	raw, err := evidence.DecodeImage(image)
	if err != nil {
		return nil, models.NewValidationError("image", err.Error())
	}

	start := time.Now()
	det, err := s.detector.Detect(ctx, image)
	if err != nil {
		metrics.DetectorLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		s.logger.Warn("Object detection failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		if errors.Is(err, models.ErrDependencyUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrDependencyUnavailable, err)
	}
	metrics.DetectorLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	return s.incidents.Record(ctx, sessionID, *det, raw)
}

func (s *Service) FinalizeSessionScore(ctx context.Context, sessionID, userID string) (*models.FinalScore, error) {
	score, err := s.projector.Finalize(ctx, sessionID, userID)
	if err == nil && !score.AlreadyFinalized {
		metrics.SessionsFinalized.WithLabelValues("finish").Inc()
	}
	return score, err
}

// Projector exposes the score projector for background finalization.
func (s *Service) Projector() *Projector {
	return s.projector
}

func (s *Service) GetViolationHistory(ctx context.Context, sessionID string) ([]models.Violation, error) {
	if !models.IsValidID(sessionID) {
		return nil, models.NewValidationError("interviewId", "invalid interviewId format")
	}
	violations, err := s.ledger.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	if violations == nil {
		violations = []models.Violation{}
	}
	return violations, nil
}

// Enforcement returns the current decision for a session without recording anything.
func (s *Service) Enforcement(ctx context.Context, sessionID string) (*models.Enforcement, error) {
	if !models.IsValidID(sessionID) {
		return nil, models.NewValidationError("interviewId", "invalid interviewId format")
	}
	return s.engine.Evaluate(ctx, sessionID)
}

// EnrollFace replaces the user's reference embedding.
func (s *Service) EnrollFace(ctx context.Context, userID string, embedding []float64) error {
	if !models.IsValidID(userID) {
		return models.NewValidationError("userId", "invalid userId format")
	}
	if !validEmbedding(embedding) {
		return models.NewValidationError("faceEmbedding", "faceEmbedding must be a non-empty array of finite numbers")
	}
	if magnitude(embedding) == 0 {
		return models.NewValidationError("faceEmbedding", ErrZeroMagnitude.Error())
	}
	if err := s.users.SetFaceEmbedding(ctx, userID, embedding); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
	s.logger.Info("Face enrollment updated", zap.String("user_id", userID), zap.Int("dimensions", len(embedding)))
	return nil
}

func magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
