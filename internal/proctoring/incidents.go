package proctoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"peerprep/interview/internal/metrics"
	"peerprep/interview/internal/models"
)

const (
	DefaultPenaltyPerIncident = 10
	DefaultMaxEvidenceImages  = 2
)

// IncidentRecorder turns positive banned-object detections into session
// incidents with a fixed penalty. Incidents are not ledger violations.
type IncidentRecorder struct {
	sessions    SessionStore
	evidence    EvidenceStore
	penalty     int
	maxEvidence int
	logger      *zap.Logger
	now         func() time.Time
}

func NewIncidentRecorder(sessions SessionStore, evidence EvidenceStore, penalty, maxEvidence int, logger *zap.Logger) *IncidentRecorder {
	if penalty <= 0 {
		penalty = DefaultPenaltyPerIncident
	}
	if maxEvidence < 0 {
		maxEvidence = DefaultMaxEvidenceImages
	}
	return &IncidentRecorder{
		sessions:    sessions,
		evidence:    evidence,
		penalty:     penalty,
		maxEvidence: maxEvidence,
		logger:      logger,
		now:         time.Now,
	}
}

// Record applies det to the session. A negative detection changes nothing.
// rawImage is stored as evidence only while fewer than maxEvidence incidents exist.
func (r *IncidentRecorder) Record(ctx context.Context, sessionID string, det models.DetectionResult, rawImage []byte) (*models.IncidentResult, error) {
	ctx, span := tracer.Start(ctx, "proctoring.RecordObjectDetectionIncident")
	defer span.End()

	if !models.IsValidID(sessionID) {
		return nil, models.NewValidationError("sessionId", "invalid sessionId format")
	}

	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res := &models.IncidentResult{
		IncidentCount: session.Cheating.IncidentCount,
		PenaltyPoints: session.Cheating.PenaltyPoints,
		IsDetected:    session.Cheating.IsDetected,
		Detection:     det,
	}
	if !det.PhoneDetected {
		return res, nil
	}
	if session.FinalizedAt != nil {
		return nil, models.ErrSessionCompleted
	}

	incident := models.Incident{
		Timestamp:       r.now().UTC(),
		Confidence:      det.Confidence,
		DetectedObjects: det.DetectedObjects,
	}
	if incident.DetectedObjects == nil {
		incident.DetectedObjects = []string{}
	}
	if len(rawImage) > 0 && r.evidence != nil && session.Cheating.IncidentCount < r.maxEvidence {
		url, err := r.evidence.Save(ctx, rawImage, "cheating_"+sessionID)
		if err != nil {
			metrics.EvidenceFailures.Inc()
			r.logger.Warn("Failed to store incident evidence",
				zap.String("session_id", sessionID),
				zap.Error(err))
		} else {
			incident.ImageURL = url
		}
	}

	cheating, err := r.sessions.RecordIncident(ctx, sessionID, incident, r.penalty)
	if err != nil {
		if incident.ImageURL != "" {
			if rmErr := r.evidence.Remove(ctx, incident.ImageURL); rmErr != nil {
				r.logger.Warn("Failed to remove incident evidence",
					zap.String("url", incident.ImageURL),
					zap.Error(rmErr))
			}
		}
		return nil, fmt.Errorf("record incident: %w", err)
	}
	metrics.IncidentsRecorded.Inc()

	r.logger.Info("Banned object incident recorded",
		zap.String("session_id", sessionID),
		zap.Int("incident_count", cheating.IncidentCount),
		zap.Int("penalty_points", cheating.PenaltyPoints),
		zap.Strings("objects", incident.DetectedObjects))

	res.Recorded = true
	res.IncidentCount = cheating.IncidentCount
	res.PenaltyPoints = cheating.PenaltyPoints
	res.IsDetected = cheating.IsDetected
	res.ImageURL = incident.ImageURL
	return res, nil
}
