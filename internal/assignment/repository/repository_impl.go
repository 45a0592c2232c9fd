package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/planfence/planfence/internal/assignment/domain"
	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/owner"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func New(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) domain.Repository {
	return &repo{db: db, genID: genID, clock: clk}
}

func (r *repo) ForOwner(ctx context.Context, ref owner.Ref) (*domain.PlanAssignment, error) {
	var a domain.PlanAssignment
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ref.Kind, ref.ID).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repo) Upsert(ctx context.Context, ref owner.Ref, planKey string, source domain.Source) error {
	now := r.clock.Now().UTC()
	a := domain.PlanAssignment{
		ID:        r.genID.Generate(),
		OwnerType: ref.Kind,
		OwnerID:   ref.ID,
		PlanKey:   planKey,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"plan_key":   planKey,
			"source":     source,
			"updated_at": now,
		}),
	}).Create(&a).Error
}

func (r *repo) Delete(ctx context.Context, ref owner.Ref) error {
	return r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ref.Kind, ref.ID).
		Delete(&domain.PlanAssignment{}).Error
}
