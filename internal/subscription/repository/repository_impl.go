package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func New(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) domain.Repository {
	return &repo{db: db, genID: genID, clock: clk}
}

func (r *repo) ActiveForOwner(ctx context.Context, ref owner.Ref) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ref.Kind, ref.ID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !sub.Status.Billable() {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) UpsertPeriod(ctx context.Context, ref owner.Ref, status domain.Status, start, end time.Time) error {
	if !end.After(start) {
		return domain.ErrInvalidPeriod
	}
	now := r.clock.Now().UTC()
	sub := domain.Subscription{
		ID:                 r.genID.Generate(),
		OwnerType:          ref.Kind,
		OwnerID:            ref.ID,
		Status:             status,
		CurrentPeriodStart: start.UTC(),
		CurrentPeriodEnd:   end.UTC(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":               status,
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"updated_at":           now,
		}),
	}).Create(&sub).Error
}

// CurrentPeriod implements the billing period lookup the period calculator
// consumes. A lapsed or missing subscription reports ok=false so the window
// falls back to the calendar month.
func (r *repo) CurrentPeriod(ctx context.Context, ref owner.Ref) (time.Time, time.Time, bool, error) {
	sub, err := r.ActiveForOwner(ctx, ref)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if sub == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	now := r.clock.Now().UTC()
	if !sub.CurrentPeriodEnd.After(now) {
		return time.Time{}, time.Time{}, false, nil
	}
	return sub.CurrentPeriodStart, sub.CurrentPeriodEnd, true, nil
}
