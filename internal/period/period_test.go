package period

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

type billingStub struct {
	start, end time.Time
	ok         bool
	err        error
}

func (b billingStub) CurrentPeriod(ctx context.Context, ref owner.Ref) (time.Time, time.Time, bool, error) {
	return b.start, b.end, b.ok, b.err
}

var testRef = owner.Ref{Kind: "org", ID: "1"}

func TestCalendarMonthWindow(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC))
	c := NewCalculator(clk, nil, time.UTC)

	start, end, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{Key: "x", Per: plan.CycleCalendarMonth})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	wantStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Fatalf("window = [%v, %v), want [%v, %v)", start, end, wantStart, wantEnd)
	}
}

func TestCalendarMonthHonorsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 03:00 UTC on March 1 is still Feb 28 in New York.
	clk := clock.NewFakeClock(time.Date(2026, time.March, 1, 3, 0, 0, 0, time.UTC))
	c := NewCalculator(clk, nil, loc)

	start, _, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{Key: "x", Per: plan.CycleCalendarMonth})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	wantStart := time.Date(2026, time.February, 1, 0, 0, 0, 0, loc).UTC()
	if !start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", start, wantStart)
	}
}

func TestCalendarWeekStartsMonday(t *testing.T) {
	cases := []struct {
		day  time.Time
		want time.Time
	}{
		// Wednesday
		{time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC), time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)},
		// Monday itself
		{time.Date(2026, time.March, 9, 0, 0, 1, 0, time.UTC), time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)},
		// Sunday belongs to the preceding Monday
		{time.Date(2026, time.March, 15, 23, 0, 0, 0, time.UTC), time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		clk := clock.NewFakeClock(tc.day)
		c := NewCalculator(clk, nil, time.UTC)
		start, end, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{Key: "x", Per: plan.CycleCalendarWeek})
		if err != nil {
			t.Fatalf("window: %v", err)
		}
		if !start.Equal(tc.want) {
			t.Fatalf("%v: start = %v, want %v", tc.day, start, tc.want)
		}
		if !end.Equal(tc.want.AddDate(0, 0, 7)) {
			t.Fatalf("%v: end = %v, want a 7 day window", tc.day, end)
		}
	}
}

func TestFixedWindowFromStartOfDay(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC))
	c := NewCalculator(clk, nil, time.UTC)

	start, end, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{
		Key:   "x",
		Per:   plan.CycleFixed,
		Every: 6 * time.Hour,
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	wantStart := time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantStart.Add(6*time.Hour)) {
		t.Fatalf("window = [%v, %v)", start, end)
	}
}

func TestBillingCycleUsesSubscription(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC))
	billing := billingStub{
		start: time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
		end:   time.Date(2026, time.April, 5, 0, 0, 0, 0, time.UTC),
		ok:    true,
	}
	c := NewCalculator(clk, billing, time.UTC)

	start, end, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{Key: "x", Per: plan.CycleBillingCycle})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !start.Equal(billing.start) || !end.Equal(billing.end) {
		t.Fatalf("window = [%v, %v), want the subscription period", start, end)
	}
}

func TestBillingCycleFallsBackToCalendarMonth(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC))
	c := NewCalculator(clk, billingStub{ok: false}, time.UTC)

	start, _, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{Key: "x", Per: plan.CycleBillingCycle})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !start.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v, want calendar month fallback", start)
	}
}

func TestBillingCycleProviderErrorPropagates(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	wantErr := errors.New("billing down")
	c := NewCalculator(clk, billingStub{err: wantErr}, time.UTC)

	_, _, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{Key: "x", Per: plan.CycleBillingCycle})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestCustomWindowValidated(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewCalculator(clk, nil, time.UTC)

	_, _, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{
		Key: "x",
		Per: plan.CycleCustom,
		Window: func(now time.Time) (time.Time, time.Time) {
			return now, now
		},
	})
	if !errors.Is(err, plan.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestNonPeriodicCycleRejected(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewCalculator(clk, nil, time.UTC)

	_, _, err := c.WindowFor(context.Background(), testRef, plan.LimitConfig{Key: "x"})
	if !errors.Is(err, plan.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}
