// Package domain contains the subscription rows that supply billing cycle
// boundaries. Billing itself lives elsewhere; enforcement only reads the
// current period and writes what a billing sync pushes in.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/planfence/planfence/internal/owner"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusTrialing Status = "TRIALING"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
	StatusEnded    Status = "ENDED"
)

// Billable reports whether the subscription still defines a billing cycle.
func (s Status) Billable() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	default:
		return false
	}
}

// Subscription captures an owner's external billing agreement.
type Subscription struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	OwnerType          string            `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_owner"`
	OwnerID            string            `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_owner"`
	Status             Status            `gorm:"type:text;not null"`
	CurrentPeriodStart time.Time         `gorm:"not null"`
	CurrentPeriodEnd   time.Time         `gorm:"not null"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Repository reads and syncs subscription rows.
type Repository interface {
	// ActiveForOwner returns the owner's billable subscription, or nil.
	ActiveForOwner(ctx context.Context, ref owner.Ref) (*Subscription, error)
	// UpsertPeriod records the current billing period for an owner,
	// creating the subscription row on first sync.
	UpsertPeriod(ctx context.Context, ref owner.Ref, status Status, start, end time.Time) error
	// CurrentPeriod returns the owner's billing cycle boundaries;
	// ok is false when no billable subscription covers now.
	CurrentPeriod(ctx context.Context, ref owner.Ref) (start, end time.Time, ok bool, err error)
}

var ErrInvalidPeriod = errors.New("subscription.errors.invalid_period")
