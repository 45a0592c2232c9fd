// Package domain contains usage tracking models and the counter contract.
// Per-period limits are backed by a monotonic counter row per window;
// persistent caps are counted live through a registered CounterFunc so
// deleting a resource immediately frees capacity.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

// UsageRecord stores consumption for one (owner, limit, window) triple.
// The counter only ever grows within its window; a new window starts at 0.
type UsageRecord struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OwnerType   string       `gorm:"type:text;not null;uniqueIndex:idx_usages_window"`
	OwnerID     string       `gorm:"type:text;not null;uniqueIndex:idx_usages_window"`
	LimitKey    string       `gorm:"type:text;not null;uniqueIndex:idx_usages_window"`
	PeriodStart time.Time    `gorm:"not null;uniqueIndex:idx_usages_window"`
	PeriodEnd   time.Time    `gorm:"not null"`
	Used        int64        `gorm:"not null;default:0"`
	LastUsedAt  time.Time    `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usages" }

// CounterFunc returns the live count of an owner's persistent resources.
// Should be fast: count at the repository level, not in memory.
type CounterFunc func(ctx context.Context, ref owner.Ref) (int64, error)

// CounterRegistry maps a limit key to its CounterFunc.
// Not thread-safe: register all counters at startup only.
type CounterRegistry map[string]CounterFunc

// NewRegistry returns a new, empty CounterRegistry.
func NewRegistry() CounterRegistry {
	return make(CounterRegistry)
}

// Register sets or replaces the CounterFunc for the given limit key.
// Panics if fn is nil.
func (r CounterRegistry) Register(limitKey string, fn CounterFunc) {
	if fn == nil {
		panic(fmt.Sprintf("usage: CounterFunc for limit %q cannot be nil", limitKey))
	}
	r[limitKey] = fn
}

// Repository persists per-period usage counters.
type Repository interface {
	// WindowUsed returns the counter for the window starting at
	// periodStart, or 0 when no row exists yet.
	WindowUsed(ctx context.Context, ref owner.Ref, limitKey string, periodStart time.Time) (int64, error)
	// Increment atomically adds amount to the window counter, creating
	// the row on first consumption. Safe under concurrent writers.
	Increment(ctx context.Context, ref owner.Ref, limitKey string, periodStart, periodEnd time.Time, amount int64) error
}

// Counter computes current consumption for (owner, limit) pairs.
type Counter interface {
	CurrentUsage(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (int64, error)
	// Remaining returns cap minus usage, floored at 0; plan.Unlimited for
	// unlimited limits.
	Remaining(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (int64, error)
	// PercentUsed returns usage as a fraction of the cap in percent,
	// capped at 100.0; 0.0 for unlimited or zero-cap limits.
	PercentUsed(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (float64, error)
	// Record adds amount to a per-period counter. Persistent caps are a
	// no-op: their usage is the live count of existing rows.
	Record(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, amount int64) error
}

var (
	ErrNoCounterRegistered = errors.New("usage.errors.no_counter_registered")
	ErrCountFailed         = errors.New("usage.errors.count_failed")
	ErrInvalidAmount       = errors.New("usage.errors.invalid_amount")
)
