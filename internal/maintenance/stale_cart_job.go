package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/ledger"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
)

const (
	staleCartJobName      = "stale-cart-release"
	defaultStaleCartBatch = 100
)

type stockRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, movement ledger.Movement) (int, error)
}

type StaleCartJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Carts     cart.Repository
	Ledger    stockRestorer
	Metrics   *metrics.JobMetrics
	HoldTTL   time.Duration
	BatchSize int
}

// NewStaleCartJob returns the job that empties carts left untouched for
// HoldTTL and puts their held quantities back on the shelf. A non-positive
// HoldTTL disables it and yields a nil job.
func NewStaleCartJob(params StaleCartJobParams) (Job, error) {
	if params.HoldTTL <= 0 {
		return nil, nil
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleCartBatch
	}
	return &staleCartJob{
		logg:    params.Logger,
		db:      params.DB,
		carts:   params.Carts,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		holdTTL: params.HoldTTL,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type staleCartJob struct {
	logg    *logger.Logger
	db      txRunner
	carts   cart.Repository
	ledger  stockRestorer
	metrics *metrics.JobMetrics
	holdTTL time.Duration
	batch   int
	now     func() time.Time
}

func (j *staleCartJob) Name() string { return staleCartJobName }

// Run releases at most one batch of carts per cycle. Each cart is released in
// its own transaction; failures are collected and the loop moves on.
func (j *staleCartJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.holdTTL)
	cartIDs, err := j.carts.FindStaleCartIDs(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale carts: %w", err)
	}

	var errs error
	var released int64
	units := 0
	for _, cartID := range cartIDs {
		items, restored, err := j.releaseCart(ctx, cartID, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release cart %s: %w", cartID, err))
			continue
		}
		released += int64(items)
		units += restored
	}
	j.metrics.AddProcessed(staleCartJobName, released)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"carts":          len(cartIDs),
		"items_released": released,
		"units_restored": units,
	})
	j.logg.Info(logCtx, "stale cart release complete")
	return errs
}

// releaseCart skips items changed after cutoff; the conditional delete
// guarantees a concurrent cart update and this job never both act on one item.
func (j *staleCartJob) releaseCart(ctx context.Context, cartID uuid.UUID, cutoff time.Time) (int, int, error) {
	items, units := 0, 0
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		items, units = 0, 0
		repo := j.carts.WithTx(tx)
		rows, err := repo.ListItems(ctx, cartID)
		if err != nil {
			return err
		}
		for _, item := range rows {
			deleted, err := repo.DeleteStaleItem(ctx, item, cutoff)
			if err != nil {
				return err
			}
			if !deleted {
				continue
			}
			_, err = j.ledger.Restore(ctx, tx, ledger.Movement{
				ProductID:   item.ProductID,
				Amount:      item.Quantity,
				Reason:      enums.StockReasonCartExpired,
				ReferenceID: &cartID,
			})
			items++
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					continue
				}
				return err
			}
			units += item.Quantity
		}
		return nil
	})
	return items, units, err
}
