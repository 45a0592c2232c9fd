package plan

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// filePlan mirrors one plan entry in plans.yml.
type filePlan struct {
	Key      string      `mapstructure:"key"`
	Name     string      `mapstructure:"name"`
	Default  bool        `mapstructure:"default"`
	Features []string    `mapstructure:"features"`
	Limits   []fileLimit `mapstructure:"limits"`
}

type fileLimit struct {
	Key    string    `mapstructure:"key"`
	Cap    int64     `mapstructure:"cap"`
	Per    string    `mapstructure:"per"`
	Every  string    `mapstructure:"every"`
	Policy string    `mapstructure:"policy"`
	Grace  string    `mapstructure:"grace"`
	WarnAt []float64 `mapstructure:"warn_at"`
}

// LoadPlans reads the plan catalog from plans.yml in the given search paths.
// A missing file yields the built-in defaults so the service is usable out
// of the box; a malformed file is a boot failure.
func LoadPlans(paths []string) ([]Plan, error) {
	v := viper.New()
	v.SetConfigName("plans")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultPlans(), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	var entries []filePlan
	if err := v.UnmarshalKey("plans", &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	plans := make([]Plan, 0, len(entries))
	for _, entry := range entries {
		p := Plan{
			Key:      entry.Key,
			Name:     entry.Name,
			Default:  entry.Default,
			Features: entry.Features,
			Limits:   make(map[string]LimitConfig, len(entry.Limits)),
		}
		for _, l := range entry.Limits {
			cfg := LimitConfig{
				Key:               l.Key,
				Cap:               l.Cap,
				Per:               Cycle(l.Per),
				Policy:            Policy(l.Policy),
				WarningThresholds: l.WarnAt,
			}
			if l.Grace != "" {
				grace, err := time.ParseDuration(l.Grace)
				if err != nil {
					return nil, fmt.Errorf("%w: plan %q limit %q grace %q: %v", ErrInvalidConfiguration, entry.Key, l.Key, l.Grace, err)
				}
				cfg.Grace = grace
			}
			if l.Every != "" {
				every, err := time.ParseDuration(l.Every)
				if err != nil {
					return nil, fmt.Errorf("%w: plan %q limit %q every %q: %v", ErrInvalidConfiguration, entry.Key, l.Key, l.Every, err)
				}
				cfg.Every = every
			}
			p.Limits[l.Key] = cfg
		}
		plans = append(plans, p)
	}

	return plans, nil
}

// DefaultPlans is the catalog used when no plans.yml is present.
func DefaultPlans() []Plan {
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
					WarningThresholds: []float64{0.6, 0.8, 0.95},
				},
				"api-calls": {
					Cap:    1000,
					Per:    CycleCalendarMonth,
					Policy: PolicyBlockUsage,
				},
			},
		},
		{
			Key:      "pro",
			Name:     "Pro",
			Features: []string{"sso", "audit-log"},
			Limits: map[string]LimitConfig{
				"projects": {
					Cap:               50,
					Policy:            PolicyGraceThenBlock,
					Grace:             7 * 24 * time.Hour,
					WarningThresholds: []float64{0.8, 0.95},
				},
				"api-calls": {
					Cap: Unlimited,
					Per: CycleCalendarMonth,
				},
			},
		},
	}
}
