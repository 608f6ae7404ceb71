package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"peerprep/interview/internal/metrics"
	"peerprep/interview/internal/models"
)

const (
	defaultBatchSize = 100
	runTimeout       = 5 * time.Minute
)

type staleSessionLister interface {
	ListStaleUnfinalized(ctx context.Context, cutoff time.Time, limit int64) ([]string, error)
}

type sessionFinalizer interface {
	Finalize(ctx context.Context, sessionID, userID string) (*models.FinalScore, error)
}

// FinalizerConfig controls the abandoned-session sweep
type FinalizerConfig struct {
	Schedule  string        // cron schedule, e.g. "@every 10m"
	MaxAge    time.Duration // sessions older than this without a final score are finalized
	BatchSize int64
}

// SessionFinalizerJob finalizes sessions whose candidate never called finish.
// Finalization is exactly-once, so overlapping runs or a concurrent finish are harmless.
type SessionFinalizerJob struct {
	sessions  staleSessionLister
	finalizer sessionFinalizer
	config    FinalizerConfig
	cron      *cron.Cron
	logger    *zap.Logger
	now       func() time.Time
}

func NewSessionFinalizerJob(sessions staleSessionLister, finalizer sessionFinalizer, config FinalizerConfig, logger *zap.Logger) *SessionFinalizerJob {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionFinalizerJob{
		sessions:  sessions,
		finalizer: finalizer,
		config:    config,
		cron:      cron.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the sweep
func (j *SessionFinalizerJob) Start() error {
	_, err := j.cron.AddFunc(j.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("Session finalizer run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session finalizer: %w", err)
	}

	j.cron.Start()
	j.logger.Info("Session finalizer started",
		zap.String("schedule", j.config.Schedule),
		zap.Duration("max_age", j.config.MaxAge))
	return nil
}

// Stop waits for a running sweep to finish
func (j *SessionFinalizerJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
		j.logger.Info("Session finalizer stopped")
	}
}

// RunOnce finalizes one batch of stale sessions and returns how many it finalized.
// A failure on one session does not stop the batch.
func (j *SessionFinalizerJob) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.config.MaxAge)
	ids, err := j.sessions.ListStaleUnfinalized(ctx, cutoff, j.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}

	finalized := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return finalized, ctx.Err()
		}
		score, err := j.finalizer.Finalize(ctx, id, "")
		if err != nil {
			j.logger.Warn("Failed to finalize stale session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if score.AlreadyFinalized {
			continue
		}
		finalized++
		metrics.SessionsFinalized.WithLabelValues("timeout").Inc()
	}

	if len(ids) > 0 {
		j.logger.Info("Stale sessions finalized",
			zap.Int("candidates", len(ids)),
			zap.Int("finalized", finalized))
	}
	return finalized, nil
}
