// Package domain defines the explicit plan-to-owner mapping. Owners without
// an assignment row fall back to the catalog's default plan.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

// Source records who put the assignment in place.
type Source string

const (
	SourceManual      Source = "manual"
	SourceAdmin       Source = "admin"
	SourceBillingSync Source = "billing-sync"
)

// PlanAssignment pins an owner to a plan key.
type PlanAssignment struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OwnerType string       `gorm:"type:text;not null;uniqueIndex:idx_plan_assignments_owner"`
	OwnerID   string       `gorm:"type:text;not null;uniqueIndex:idx_plan_assignments_owner"`
	PlanKey   string       `gorm:"type:text;not null"`
	Source    Source       `gorm:"type:text;not null;default:'manual'"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlanAssignment) TableName() string { return "plan_assignments" }

// Repository persists assignment rows.
type Repository interface {
	ForOwner(ctx context.Context, ref owner.Ref) (*PlanAssignment, error)
	Upsert(ctx context.Context, ref owner.Ref, planKey string, source Source) error
	Delete(ctx context.Context, ref owner.Ref) error
}

// Service manages assignments and resolves the plan in effect for an owner.
type Service interface {
	Assign(ctx context.Context, ref owner.Ref, planKey string, source Source) error
	Clear(ctx context.Context, ref owner.Ref) error
	EffectivePlanFor(ctx context.Context, ref owner.Ref) (plan.Plan, error)
}

var ErrUnknownSource = errors.New("assignment.errors.unknown_source")
