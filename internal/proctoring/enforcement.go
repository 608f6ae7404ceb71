package proctoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"peerprep/interview/internal/evidence"
	"peerprep/interview/internal/metrics"
	"peerprep/interview/internal/models"
)

var tracer = otel.Tracer("peerprep/interview/proctoring")

// ChannelEnforcement carries termination recommendations to other services.
const ChannelEnforcement = "proctoring_enforcement"

// Report is a violation as submitted by a client or raised by the identity check.
type Report struct {
	SessionID     string
	UserID        string
	ViolationType string
	ActionTaken   string
	Screenshot    string // inline data URL
	ScreenshotURL string
	EventID       string
	Source        models.ViolationSource
}

type EnforcementEvent struct {
	SessionID      string                `json:"sessionId"`
	UserID         string                `json:"userId"`
	Recommendation models.Recommendation `json:"recommendation"`
	Enforcement    models.Enforcement    `json:"enforcement"`
	ViolationID    string                `json:"violationId"`
	At             time.Time             `json:"at"`
}

// Engine appends violations to the ledger and derives the escalation decision
// from ledger counts. It never terminates a session itself.
type Engine struct {
	sessions     SessionStore
	ledger       ViolationLedger
	users        UserDirectory
	evidence     EvidenceStore
	events       EventPublisher
	policy       Policy
	criticalFace int
	logger       *zap.Logger
	now          func() time.Time
}

func NewEngine(sessions SessionStore, ledger ViolationLedger, users UserDirectory, evidence EvidenceStore, events EventPublisher, policy Policy, logger *zap.Logger) *Engine {
	if !policy.valid() {
		policy = DefaultPolicy
	}
	return &Engine{
		sessions:     sessions,
		ledger:       ledger,
		users:        users,
		evidence:     evidence,
		events:       events,
		policy:       policy,
		criticalFace: policy.FaceFinal,
		logger:       logger,
		now:          time.Now,
	}
}

func (e *Engine) RecordAndEvaluate(ctx context.Context, r Report) (*models.LogResult, error) {
	ctx, span := tracer.Start(ctx, "proctoring.RecordAndEvaluate")
	defer span.End()

	result, err := e.recordAndEvaluate(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("violation.type", string(result.Violation.ViolationType)),
		attribute.String("enforcement.recommendation", string(result.Enforcement.Recommendation)),
		attribute.Bool("violation.duplicate", result.Duplicate),
	)
	return result, nil
}

func (e *Engine) recordAndEvaluate(ctx context.Context, r Report) (*models.LogResult, error) {
	if r.Source == "" {
		r.Source = models.SourceClient
	}

	vType, err := ParseViolationType(r.ViolationType)
	if err != nil {
		return nil, err
	}
	if !vType.Storable() {
		return nil, models.NewValidationError("violationType", string(vType)+" is reported through object detection")
	}

	var action models.ActionTaken
	if r.Source == models.SourceClient {
		if action, err = ParseAction(r.ActionTaken); err != nil {
			return nil, err
		}
	}

	if !models.IsValidID(r.UserID) {
		return nil, models.NewValidationError("userId", "invalid userId format")
	}
	if !models.IsValidID(r.SessionID) {
		return nil, models.NewValidationError("interviewId", "invalid interviewId format")
	}

	exists, err := e.users.UserExists(ctx, r.UserID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !exists {
		return nil, models.ErrUserNotFound
	}

	if r.Source == models.SourceIdentityCheck {
		if action, err = e.prospectiveAction(ctx, r.SessionID, vType); err != nil {
			return nil, err
		}
	}

	violation := &models.Violation{
		SessionID:     r.SessionID,
		UserID:        r.UserID,
		ViolationType: vType,
		ActionTaken:   action,
		ScreenshotURL: e.storeEvidence(ctx, r),
		EventID:       r.EventID,
		Source:        r.Source,
		Timestamp:     e.now().UTC(),
	}

	stored, created, err := e.ledger.Append(ctx, violation)
	if err != nil {
		e.discardEvidence(ctx, r, violation.ScreenshotURL)
		return nil, fmt.Errorf("append violation: %w", err)
	}
	if !created && violation.ScreenshotURL != stored.ScreenshotURL {
		e.discardEvidence(ctx, r, violation.ScreenshotURL)
	}

	result := &models.LogResult{Violation: stored, Duplicate: !created}

	if created {
		metrics.ViolationsLogged.WithLabelValues(string(vType), string(stored.ActionTaken), string(r.Source)).Inc()
		if vType == models.ViolationFaceMismatch {
			result.SessionUpdate = e.bumpFaceMismatch(ctx, r.SessionID)
		}
	}

	enforcement, err := e.Evaluate(ctx, r.SessionID)
	if err != nil {
		return nil, err
	}
	result.Enforcement = *enforcement
	metrics.Recommendations.WithLabelValues(string(enforcement.Recommendation)).Inc()

	if created && enforcement.RequiresImmediateAction {
		e.publishTermination(ctx, stored, *enforcement)
	}

	e.logger.Info("Violation recorded",
		zap.String("session_id", r.SessionID),
		zap.String("user_id", r.UserID),
		zap.String("violation_type", string(vType)),
		zap.String("action", string(stored.ActionTaken)),
		zap.String("recommendation", string(enforcement.Recommendation)),
		zap.Bool("duplicate", !created))

	return result, nil
}

// Evaluate recomputes the enforcement decision from the ledger.
func (e *Engine) Evaluate(ctx context.Context, sessionID string) (*models.Enforcement, error) {
	face, object, err := e.counts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	enforcement := e.policy.Evaluate(face, object)
	return &enforcement, nil
}

func (e *Engine) counts(ctx context.Context, sessionID string) (face, object int, err error) {
	face, err = e.ledger.CountByType(ctx, sessionID, models.ViolationFaceMismatch)
	if err != nil {
		return 0, 0, fmt.Errorf("count face mismatches: %w", err)
	}
	object, err = e.ledger.CountByType(ctx, sessionID, models.ObjectViolationTypes...)
	if err != nil {
		return 0, 0, fmt.Errorf("count object detections: %w", err)
	}
	return face, object, nil
}

// prospectiveAction is the action the ledger will recommend once a violation of
// vType has been appended.
func (e *Engine) prospectiveAction(ctx context.Context, sessionID string, vType models.ViolationType) (models.ActionTaken, error) {
	face, object, err := e.counts(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if vType == models.ViolationFaceMismatch {
		face++
	} else {
		object++
	}
	if action, ok := e.policy.Recommend(face, object).Action(); ok {
		return action, nil
	}
	return models.ActionWarning, nil
}

func (e *Engine) storeEvidence(ctx context.Context, r Report) string {
	if !evidence.IsDataURL(r.Screenshot) || e.evidence == nil {
		return r.ScreenshotURL
	}
	data, err := evidence.DecodeImage(r.Screenshot)
	if err == nil {
		var url string
		url, err = e.evidence.Save(ctx, data, "violation_"+r.SessionID)
		if err == nil {
			return url
		}
	}
	metrics.EvidenceFailures.Inc()
	e.logger.Warn("Failed to store violation screenshot",
		zap.String("session_id", r.SessionID),
		zap.Error(err))
	return r.ScreenshotURL
}

// discardEvidence removes an image saved for r that no ledger row references.
func (e *Engine) discardEvidence(ctx context.Context, r Report, saved string) {
	if e.evidence == nil || saved == "" || saved == r.ScreenshotURL {
		return
	}
	if err := e.evidence.Remove(ctx, saved); err != nil {
		e.logger.Warn("Failed to remove unreferenced screenshot",
			zap.String("url", saved),
			zap.Error(err))
	}
}

func (e *Engine) bumpFaceMismatch(ctx context.Context, sessionID string) *models.SessionUpdate {
	count, err := e.sessions.IncrementFaceMismatch(ctx, sessionID, e.criticalFace)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			e.logger.Warn("Session not found for face mismatch update", zap.String("session_id", sessionID))
		} else {
			e.logger.Warn("Failed to update face mismatch count",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
		return nil
	}
	return &models.SessionUpdate{
		FaceMismatchCount: count,
		IsCritical:        count >= e.criticalFace,
	}
}

func (e *Engine) publishTermination(ctx context.Context, v *models.Violation, enforcement models.Enforcement) {
	if e.events == nil {
		return
	}
	event := EnforcementEvent{
		SessionID:      v.SessionID,
		UserID:         v.UserID,
		Recommendation: enforcement.Recommendation,
		Enforcement:    enforcement,
		ViolationID:    v.ID,
		At:             e.now().UTC(),
	}
	if err := e.events.Publish(ctx, ChannelEnforcement, event); err != nil {
		e.logger.Warn("Failed to publish enforcement event",
			zap.String("session_id", v.SessionID),
			zap.Error(err))
	}
}
