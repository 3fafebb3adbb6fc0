package maintenance

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
)

const outboxRetentionJobName = "outbox-retention"

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	Metrics    *metrics.JobMetrics
	Retention  time.Duration
}

type outboxPruner interface {
	DeleteSettledBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
	CountPending() (int64, error)
}

// NewOutboxRetentionJob prunes published and abandoned outbox rows older than
// Retention. It returns a nil job when Retention is not positive.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Retention <= 0 {
		return nil, nil
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: params.Retention,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxPruner
	metrics   *metrics.JobMetrics
	retention time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return outboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteSettledBefore(tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.metrics.AddProcessed(outboxRetentionJobName, deleted)

	fields := map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}
	if pending, err := j.repo.CountPending(); err == nil {
		fields["pending"] = pending
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}
