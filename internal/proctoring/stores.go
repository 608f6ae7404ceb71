package proctoring

import (
	"context"
	"time"

	"peerprep/interview/internal/models"
)

// SessionStore mutates session documents with targeted atomic updates only.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	ResetMismatchStreak(ctx context.Context, sessionID string) error
	// IncrementMismatchStreak returns the streak value after the increment.
	IncrementMismatchStreak(ctx context.Context, sessionID string) (int, error)
	// IncrementFaceMismatch returns the new count and sets isDetected once it reaches criticalAt.
	IncrementFaceMismatch(ctx context.Context, sessionID string, criticalAt int) (int, error)
	// RecordIncident fails with models.ErrSessionCompleted once the session is finalized.
	RecordIncident(ctx context.Context, sessionID string, incident models.Incident, penalty int) (*models.CheatingRecord, error)
	// FinalizeScore applies only if the session is unfinalized and its penalty and
	// progress still match the snapshot. It reports whether the write happened.
	FinalizeScore(ctx context.Context, snapshot *models.InterviewSession, totalScore, percentage int, at time.Time) (bool, error)
}

type ViolationLedger interface {
	// Append stores v. When a row with the same session and event id exists it is
	// returned with created=false.
	Append(ctx context.Context, v *models.Violation) (stored *models.Violation, created bool, err error)
	CountByType(ctx context.Context, sessionID string, types ...models.ViolationType) (int, error)
	// ListBySession returns violations newest first.
	ListBySession(ctx context.Context, sessionID string) ([]models.Violation, error)
}

type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	// EnrolledEmbedding fails with models.ErrUserNotFound or models.ErrEnrollmentMissing.
	EnrolledEmbedding(ctx context.Context, userID string) ([]float64, error)
	SetFaceEmbedding(ctx context.Context, userID string, embedding []float64) error
}

type EmbeddingCache interface {
	Get(ctx context.Context, userID string) ([]float64, bool)
	Set(ctx context.Context, userID string, embedding []float64)
	Invalidate(ctx context.Context, userID string)
}

type EvidenceStore interface {
	Save(ctx context.Context, data []byte, name string) (string, error)
	// Remove deletes an image previously returned by Save.
	Remove(ctx context.Context, url string) error
}

type Detector interface {
	Detect(ctx context.Context, imageBase64 string) (*models.DetectionResult, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

type ReportWriter interface {
	UpsertReport(ctx context.Context, report *models.InterviewReport) error
}
