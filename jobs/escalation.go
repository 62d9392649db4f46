package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Escalator moves overdue approvals to their escalation role.
type Escalator interface {
	EscalateOverdue(ctx context.Context, now time.Time) (int, error)
}

// EscalationJob sweeps pending approvals.
type EscalationJob struct {
	Approvals Escalator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewEscalationJob constructs the job handler.
func NewEscalationJob(approvals Escalator, logger *slog.Logger, metrics *jobmetrics.Metrics) *EscalationJob {
	return &EscalationJob{
		Approvals: approvals,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the escalation sweep.
func (j *EscalationJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Approvals == nil {
		return errors.New("approvals escalate: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskApprovalsEscalate)
	escalated, err := j.Approvals.EscalateOverdue(ctx, j.clock())
	if err != nil {
		j.log().Error("escalate approvals", slog.Any("error", err))
		return tracker.End(err)
	}
	if escalated > 0 {
		j.log().Info("approvals escalated", slog.Int("count", escalated))
	}
	return tracker.End(nil)
}

func (j *EscalationJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
