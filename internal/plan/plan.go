// Package plan holds the declarative plan catalog: per-plan limit
// configuration, feature flags and the validation that runs once at boot.
// Plans are immutable after loading; evaluation code only reads them.
package plan

import (
	"slices"
	"time"
)

// Unlimited marks a limit with no cap (-1).
const Unlimited int64 = -1

// Policy decides what happens once usage crosses a limit's cap.
type Policy string

const (
	// PolicyGraceThenBlock starts a grace period on exceedance and hard
	// blocks once it elapses. Usage exactly at the cap is still allowed.
	PolicyGraceThenBlock Policy = "grace_then_block"
	// PolicyBlockUsage blocks as soon as usage reaches the cap.
	PolicyBlockUsage Policy = "block_usage"
	// PolicyJustWarn never blocks; over-limit evaluations report a warning.
	PolicyJustWarn Policy = "just_warn"
)

func (p Policy) Valid() bool {
	switch p {
	case PolicyGraceThenBlock, PolicyBlockUsage, PolicyJustWarn:
		return true
	default:
		return false
	}
}

// Cycle selects how the usage window of a per-period limit is computed.
// The empty cycle means the limit is a persistent cap counted live.
type Cycle string

const (
	CycleNone          Cycle = ""
	CycleBillingCycle  Cycle = "billing_cycle"
	CycleCalendarMonth Cycle = "calendar_month"
	CycleCalendarWeek  Cycle = "calendar_week"
	CycleCalendarDay   Cycle = "calendar_day"
	CycleFixed         Cycle = "fixed"
	CycleCustom        Cycle = "custom"
)

func (c Cycle) Valid() bool {
	switch c {
	case CycleNone, CycleBillingCycle, CycleCalendarMonth, CycleCalendarWeek,
		CycleCalendarDay, CycleFixed, CycleCustom:
		return true
	default:
		return false
	}
}

// WindowFunc returns an explicit [start, end) pair for a custom cycle.
type WindowFunc func(now time.Time) (start, end time.Time)

// LimitConfig describes one metered quantity on a plan.
type LimitConfig struct {
	Key string
	Cap int64
	// Per selects the usage window; CycleNone means a persistent cap.
	Per Cycle
	// Every is the window length when Per is CycleFixed.
	Every time.Duration
	// Window supplies the boundaries when Per is CycleCustom.
	Window WindowFunc
	Policy Policy
	// Grace is how long usage may stay over the cap before a hard block.
	Grace time.Duration
	// WarningThresholds are fractions of the cap in (0, 1], ascending.
	WarningThresholds []float64
}

// Unlimited reports whether the limit has no cap.
func (c LimitConfig) Unlimited() bool { return c.Cap == Unlimited }

// PerPeriod reports whether usage is tracked against a rolling window.
func (c LimitConfig) PerPeriod() bool { return c.Per != CycleNone }

// GraceDeadline returns when the grace period started at exceededAt ends.
func (c LimitConfig) GraceDeadline(exceededAt time.Time) time.Time {
	return exceededAt.Add(c.Grace)
}

// Plan describes one subscription tier.
type Plan struct {
	Key      string
	Name     string
	Default  bool
	Limits   map[string]LimitConfig
	Features []string
}

// LimitFor returns the configuration of a limit key, if present.
func (p Plan) LimitFor(key string) (LimitConfig, bool) {
	cfg, ok := p.Limits[key]
	return cfg, ok
}

// HasFeature reports whether the plan enables a feature flag.
func (p Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}
