package plan

import (
	"errors"
	"testing"
	"time"
)

func validPlans() []Plan {
	return []Plan{
		{
			Key:     "free",
			Name:    "Free",
			Default: true,
			Limits: map[string]LimitConfig{
				"projects": {
					Cap:               3,
					Policy:            PolicyGraceThenBlock,
					Grace:             7 * 24 * time.Hour,
					WarningThresholds: []float64{0.6, 0.8},
				},
				"api-calls": {
					Cap:    1000,
					Per:    CycleCalendarMonth,
					Policy: PolicyBlockUsage,
				},
			},
		},
		{
			Key:  "pro",
			Name: "Pro",
			Limits: map[string]LimitConfig{
				"projects":  {Cap: 50, Policy: PolicyGraceThenBlock, Grace: 7 * 24 * time.Hour},
				"api-calls": {Cap: Unlimited, Per: CycleCalendarMonth},
			},
		},
	}
}

func TestNewCatalogValid(t *testing.T) {
	c, err := NewCatalog(validPlans())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if c.DefaultKey() != "free" {
		t.Fatalf("default key = %q, want free", c.DefaultKey())
	}
	p, ok := c.Plan("pro")
	if !ok {
		t.Fatal("pro plan missing")
	}
	cfg, ok := p.LimitFor("api-calls")
	if !ok {
		t.Fatal("api-calls limit missing")
	}
	if !cfg.Unlimited() {
		t.Fatal("pro api-calls should be unlimited")
	}
}

func TestNewCatalogNormalizesKeys(t *testing.T) {
	plans := []Plan{{
		Key:     "Free Tier",
		Default: true,
		Limits: map[string]LimitConfig{
			"API Calls": {Cap: 10, Per: CycleCalendarMonth},
		},
	}}
	c, err := NewCatalog(plans)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	p, ok := c.Plan("free-tier")
	if !ok {
		t.Fatal("slugified plan key not found")
	}
	if _, ok := p.LimitFor("api-calls"); !ok {
		t.Fatal("slugified limit key not found")
	}
}

func TestNewCatalogDefaultPolicyApplied(t *testing.T) {
	plans := []Plan{{
		Key:     "free",
		Default: true,
		Limits:  map[string]LimitConfig{"projects": {Cap: 3}},
	}}
	c, err := NewCatalog(plans)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	cfg, _ := c.Default().LimitFor("projects")
	if cfg.Policy != PolicyGraceThenBlock {
		t.Fatalf("default policy = %q, want grace_then_block", cfg.Policy)
	}
}

func TestNewCatalogRejections(t *testing.T) {
	cases := []struct {
		name  string
		plans []Plan
	}{
		{"empty", nil},
		{"no default", []Plan{{Key: "a"}}},
		{"two defaults", []Plan{{Key: "a", Default: true}, {Key: "b", Default: true}}},
		{"duplicate keys", []Plan{{Key: "a", Default: true}, {Key: "a"}}},
		{"cap below unlimited", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: -2}}}}},
		{"bad policy", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, Policy: "maybe"}}}}},
		{"bad cycle", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, Per: "fortnight"}}}}},
		{"negative grace", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, Grace: -time.Hour}}}}},
		{"fixed without duration", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, Per: CycleFixed}}}}},
		{"custom without window", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, Per: CycleCustom}}}}},
		{"custom zero-width window", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {
			Cap: 1,
			Per: CycleCustom,
			Window: func(now time.Time) (time.Time, time.Time) {
				return now, now
			},
		}}}}},
		{"threshold above one", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, WarningThresholds: []float64{1.5}}}}}},
		{"threshold zero", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, WarningThresholds: []float64{0}}}}}},
		{"duplicate thresholds", []Plan{{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, WarningThresholds: []float64{0.5, 0.5}}}}}},
		{"mixed period kinds", []Plan{
			{Key: "a", Default: true, Limits: map[string]LimitConfig{"x": {Cap: 1, Per: CycleCalendarMonth}}},
			{Key: "b", Limits: map[string]LimitConfig{"x": {Cap: 1}}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCatalog(tc.plans)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestCatalogPlansSorted(t *testing.T) {
	c, err := NewCatalog(validPlans())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	plans := c.Plans()
	if len(plans) != 2 || plans[0].Key != "free" || plans[1].Key != "pro" {
		t.Fatalf("unexpected plan order: %+v", plans)
	}
}

func TestThresholdsSortedAfterValidation(t *testing.T) {
	c, err := NewCatalog([]Plan{{
		Key:     "a",
		Default: true,
		Limits: map[string]LimitConfig{
			"x": {Cap: 10, WarningThresholds: []float64{0.9, 0.5, 0.7}},
		},
	}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	cfg, _ := c.Default().LimitFor("x")
	want := []float64{0.5, 0.7, 0.9}
	for i, v := range want {
		if cfg.WarningThresholds[i] != v {
			t.Fatalf("thresholds = %v, want %v", cfg.WarningThresholds, want)
		}
	}
}
