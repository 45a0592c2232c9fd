// Package period computes the [start, end) usage window for per-period
// limits. Calendar cycles are aligned to the evaluation timezone; billing
// cycles delegate to the owner's subscription when one is active.
package period

import (
	"context"
	"fmt"
	"time"

	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

// BillingPeriodProvider supplies the current billing cycle boundaries for an
// owner. ok is false when the owner has no active subscription; the window
// then falls back to the calendar month.
type BillingPeriodProvider interface {
	CurrentPeriod(ctx context.Context, ref owner.Ref) (start, end time.Time, ok bool, err error)
}

// Calculator resolves limit windows.
type Calculator struct {
	clock   clock.Clock
	billing BillingPeriodProvider
	loc     *time.Location
}

func NewCalculator(clk clock.Clock, billing BillingPeriodProvider, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{clock: clk, billing: billing, loc: loc}
}

// WindowFor returns the current [start, end) window of a per-period limit.
// Both bounds are normalized to UTC so they can serve as row keys.
func (c *Calculator) WindowFor(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (time.Time, time.Time, error) {
	now := c.clock.Now().In(c.loc)

	switch cfg.Per {
	case plan.CycleBillingCycle:
		if c.billing != nil {
			start, end, ok, err := c.billing.CurrentPeriod(ctx, ref)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			if ok {
				return start.UTC(), end.UTC(), nil
			}
		}
		return c.calendarMonth(now)
	case plan.CycleCalendarMonth:
		return c.calendarMonth(now)
	case plan.CycleCalendarWeek:
		start := startOfDay(now).AddDate(0, 0, -mondayOffset(now.Weekday()))
		return start.UTC(), start.AddDate(0, 0, 7).UTC(), nil
	case plan.CycleCalendarDay:
		start := startOfDay(now)
		return start.UTC(), start.AddDate(0, 0, 1).UTC(), nil
	case plan.CycleFixed:
		start := startOfDay(now)
		return start.UTC(), start.Add(cfg.Every).UTC(), nil
	case plan.CycleCustom:
		start, end := cfg.Window(now)
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: limit %q custom window end %v does not follow start %v",
				plan.ErrInvalidConfiguration, cfg.Key, end, start)
		}
		return start.UTC(), end.UTC(), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: limit %q has no per-period cycle", plan.ErrInvalidConfiguration, cfg.Key)
	}
}

func (c *Calculator) calendarMonth(now time.Time) (time.Time, time.Time, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, c.loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC(), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayOffset returns how many days t's weekday is past Monday.
func mondayOffset(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d) - 1
}
