package proctoring

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"peerprep/interview/internal/metrics"
	"peerprep/interview/internal/models"
)

const (
	DefaultMatchThreshold = 0.96
	DefaultStreakLimit    = 3
)

// Verifier compares a fresh face embedding with the user's enrollment.
// Streak state lives on the session document, not here.
type Verifier struct {
	sessions    SessionStore
	users       UserDirectory
	cache       EmbeddingCache
	threshold   float64
	streakLimit int
	logger      *zap.Logger
}

func NewVerifier(sessions SessionStore, users UserDirectory, cache EmbeddingCache, threshold float64, streakLimit int, logger *zap.Logger) *Verifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	if streakLimit <= 0 {
		streakLimit = DefaultStreakLimit
	}
	return &Verifier{
		sessions:    sessions,
		users:       users,
		cache:       cache,
		threshold:   threshold,
		streakLimit: streakLimit,
		logger:      logger,
	}
}

// Verify checks candidate against the enrolled embedding of userID. With a non-empty
// sessionID the session's consecutive mismatch streak is reset on a match and
// incremented on a mismatch; ConfirmedMismatch is set on the call that brings the
// streak to the limit.
func (v *Verifier) Verify(ctx context.Context, sessionID, userID string, candidate []float64) (*models.VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "proctoring.VerifyIdentity")
	defer span.End()

	res, err := v.verify(ctx, sessionID, userID, candidate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("identity.verified", res.Verified),
		attribute.Float64("identity.similarity", res.Similarity),
		attribute.Int("identity.streak", res.ConsecutiveMismatchCount),
	)
	return res, nil
}

func (v *Verifier) verify(ctx context.Context, sessionID, userID string, candidate []float64) (*models.VerifyResult, error) {
	if !models.IsValidID(userID) {
		return nil, models.NewValidationError("userId", "invalid userId format")
	}
	if !validEmbedding(candidate) {
		return nil, models.NewValidationError("faceEmbedding", "faceEmbedding must be a non-empty array of finite numbers")
	}
	if sessionID != "" {
		if !models.IsValidID(sessionID) {
			return nil, models.NewValidationError("sessionId", "invalid sessionId format")
		}
		if _, err := v.sessions.GetSession(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	enrolled, err := v.enrolledEmbedding(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(enrolled) != len(candidate) {
		return nil, models.NewValidationError("faceEmbedding",
			fmt.Sprintf("expected %d dimensions, got %d", len(enrolled), len(candidate)))
	}

	similarity, err := CosineSimilarity(enrolled, candidate)
	if err != nil {
		if errors.Is(err, ErrZeroMagnitude) {
			return nil, models.NewValidationError("faceEmbedding", err.Error())
		}
		return nil, err
	}

	res := &models.VerifyResult{
		Verified:   similarity >= v.threshold,
		Similarity: similarity,
		Threshold:  v.threshold,
	}

	switch {
	case res.Verified:
		if sessionID != "" {
			if err := v.sessions.ResetMismatchStreak(ctx, sessionID); err != nil {
				return nil, fmt.Errorf("reset mismatch streak: %w", err)
			}
		}
		res.Message = "Identity verified."
		metrics.IdentityChecks.WithLabelValues("verified").Inc()

	case sessionID == "":
		res.Message = "Identity mismatch."
		metrics.IdentityChecks.WithLabelValues("mismatch").Inc()

	default:
		streak, err := v.sessions.IncrementMismatchStreak(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("increment mismatch streak: %w", err)
		}
		res.ConsecutiveMismatchCount = streak
		res.ConfirmedMismatch = streak == v.streakLimit
		if streak >= v.streakLimit {
			res.Message = "Access Denied: Confirmed Identity Mismatch."
		} else {
			res.Message = fmt.Sprintf("Warning: Identity Mismatch (%d/%d). Please look at the camera.", streak, v.streakLimit)
		}
		if res.ConfirmedMismatch {
			metrics.IdentityChecks.WithLabelValues("confirmed_mismatch").Inc()
		} else {
			metrics.IdentityChecks.WithLabelValues("mismatch").Inc()
		}
		v.logger.Warn("Identity mismatch",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.Float64("similarity", similarity),
			zap.Int("streak", streak))
	}

	return res, nil
}

func (v *Verifier) enrolledEmbedding(ctx context.Context, userID string) ([]float64, error) {
	if v.cache != nil {
		if emb, ok := v.cache.Get(ctx, userID); ok {
			return emb, nil
		}
	}
	emb, err := v.users.EnrolledEmbedding(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !validEmbedding(emb) {
		return nil, models.ErrEnrollmentMissing
	}
	if v.cache != nil {
		v.cache.Set(ctx, userID, emb)
	}
	return emb, nil
}
