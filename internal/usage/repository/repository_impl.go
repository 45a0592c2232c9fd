package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/usage/domain"
	"github.com/planfence/planfence/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func New(gdb *gorm.DB, genID *snowflake.Node, clk clock.Clock) domain.Repository {
	return &repo{db: gdb, genID: genID, clock: clk}
}

func (r *repo) WindowUsed(ctx context.Context, ref owner.Ref, limitKey string, periodStart time.Time) (int64, error) {
	var rec domain.UsageRecord
	err := r.db.WithContext(ctx).
		Select("used").
		Where("owner_type = ? AND owner_id = ? AND limit_key = ? AND period_start = ?",
			ref.Kind, ref.ID, limitKey, periodStart.UTC()).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return rec.Used, nil
}

// Increment updates the window counter in place, inserting the row on first
// consumption. Two writers racing on the first insert are resolved by the
// unique constraint: the loser falls back to the update path.
func (r *repo) Increment(ctx context.Context, ref owner.Ref, limitKey string, periodStart, periodEnd time.Time, amount int64) error {
	now := r.clock.Now().UTC()

	for attempt := 0; attempt < 2; attempt++ {
		res := r.db.WithContext(ctx).Model(&domain.UsageRecord{}).
			Where("owner_type = ? AND owner_id = ? AND limit_key = ? AND period_start = ?",
				ref.Kind, ref.ID, limitKey, periodStart.UTC()).
			Updates(map[string]any{
				"used":         gorm.Expr("used + ?", amount),
				"last_used_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		rec := domain.UsageRecord{
			ID:          r.genID.Generate(),
			OwnerType:   ref.Kind,
			OwnerID:     ref.ID,
			LimitKey:    limitKey,
			PeriodStart: periodStart.UTC(),
			PeriodEnd:   periodEnd.UTC(),
			Used:        amount,
			LastUsedAt:  now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := r.db.WithContext(ctx).Create(&rec).Error
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return err
		}
		// Lost the insert race; retry the update against the winner's row.
	}

	return fmt.Errorf("usage increment for %s/%s could not settle after insert race", ref, limitKey)
}
