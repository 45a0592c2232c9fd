package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/gosimple/slug"
)

// Catalog is the validated, read-only set of plans the service enforces.
// Construct it once at boot; it needs no synchronization afterwards.
type Catalog struct {
	plans      map[string]Plan
	defaultKey string
}

// NewCatalog validates the given plans and builds a catalog. Validation is
// fail-fast: a misconfigured catalog must never reach traffic.
func NewCatalog(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no plans configured", ErrInvalidConfiguration)
	}

	byKey := make(map[string]Plan, len(plans))
	defaultKey := ""
	// perPeriod remembers whether a limit key is window-based; every plan
	// must agree or period counters and live counts would mix.
	perPeriod := make(map[string]bool)

	for _, p := range plans {
		p.Key = slug.Make(p.Key)
		if p.Key == "" {
			return nil, fmt.Errorf("%w: plan with empty key", ErrInvalidConfiguration)
		}
		if _, dup := byKey[p.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate plan key %q", ErrInvalidConfiguration, p.Key)
		}
		if p.Default {
			if defaultKey != "" {
				return nil, fmt.Errorf("%w: plans %q and %q both marked default", ErrInvalidConfiguration, defaultKey, p.Key)
			}
			defaultKey = p.Key
		}

		normalized := make(map[string]LimitConfig, len(p.Limits))
		for key, cfg := range p.Limits {
			cfg.Key = slug.Make(key)
			if cfg.Key == "" {
				return nil, fmt.Errorf("%w: plan %q has a limit with empty key", ErrInvalidConfiguration, p.Key)
			}
			cfg, err := validateLimit(p.Key, cfg)
			if err != nil {
				return nil, err
			}
			if prev, seen := perPeriod[cfg.Key]; seen && prev != cfg.PerPeriod() {
				return nil, fmt.Errorf("%w: limit %q is per-period on some plans but persistent on others", ErrInvalidConfiguration, cfg.Key)
			}
			perPeriod[cfg.Key] = cfg.PerPeriod()
			normalized[cfg.Key] = cfg
		}
		p.Limits = normalized
		byKey[p.Key] = p
	}

	if defaultKey == "" {
		return nil, fmt.Errorf("%w: no plan marked as default", ErrInvalidConfiguration)
	}

	return &Catalog{plans: byKey, defaultKey: defaultKey}, nil
}

func validateLimit(planKey string, cfg LimitConfig) (LimitConfig, error) {
	if cfg.Cap < Unlimited {
		return cfg, fmt.Errorf("%w: plan %q limit %q has negative cap %d", ErrInvalidConfiguration, planKey, cfg.Key, cfg.Cap)
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyGraceThenBlock
	}
	if !cfg.Policy.Valid() {
		return cfg, fmt.Errorf("%w: plan %q limit %q has unknown policy %q", ErrInvalidConfiguration, planKey, cfg.Key, cfg.Policy)
	}
	if !cfg.Per.Valid() {
		return cfg, fmt.Errorf("%w: plan %q limit %q has unknown cycle %q", ErrInvalidConfiguration, planKey, cfg.Key, cfg.Per)
	}
	if cfg.Grace < 0 {
		return cfg, fmt.Errorf("%w: plan %q limit %q has negative grace period", ErrInvalidConfiguration, planKey, cfg.Key)
	}
	if cfg.Per == CycleFixed && cfg.Every <= 0 {
		return cfg, fmt.Errorf("%w: plan %q limit %q uses a fixed cycle without a duration", ErrInvalidConfiguration, planKey, cfg.Key)
	}
	if cfg.Per == CycleCustom {
		if cfg.Window == nil {
			return cfg, fmt.Errorf("%w: plan %q limit %q uses a custom cycle without a window func", ErrInvalidConfiguration, planKey, cfg.Key)
		}
		start, end := cfg.Window(time.Now())
		if !end.After(start) {
			return cfg, fmt.Errorf("%w: plan %q limit %q custom window end %v does not follow start %v", ErrInvalidConfiguration, planKey, cfg.Key, end, start)
		}
	}

	if len(cfg.WarningThresholds) > 0 {
		thresholds := append([]float64(nil), cfg.WarningThresholds...)
		sort.Float64s(thresholds)
		for i, t := range thresholds {
			if t <= 0 || t > 1 {
				return cfg, fmt.Errorf("%w: plan %q limit %q warning threshold %v outside (0, 1]", ErrInvalidConfiguration, planKey, cfg.Key, t)
			}
			if i > 0 && thresholds[i-1] == t {
				return cfg, fmt.Errorf("%w: plan %q limit %q has duplicate warning threshold %v", ErrInvalidConfiguration, planKey, cfg.Key, t)
			}
		}
		cfg.WarningThresholds = thresholds
	}

	return cfg, nil
}

// Plan returns a plan by key.
func (c *Catalog) Plan(key string) (Plan, bool) {
	p, ok := c.plans[key]
	return p, ok
}

// Default returns the plan owners fall back to when nothing is assigned.
func (c *Catalog) Default() Plan {
	return c.plans[c.defaultKey]
}

// DefaultKey returns the key of the default plan.
func (c *Catalog) DefaultKey() string {
	return c.defaultKey
}

// Plans returns all plans sorted by key.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
