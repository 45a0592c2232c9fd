package service

import (
	"context"
	"errors"

	obsmetrics "github.com/planfence/planfence/internal/observability/metrics"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/period"
	"github.com/planfence/planfence/internal/plan"
	"github.com/planfence/planfence/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Repo     domain.Repository
	Periods  *period.Calculator
	Counters domain.CounterRegistry
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type counter struct {
	log      *zap.Logger
	repo     domain.Repository
	periods  *period.Calculator
	counters domain.CounterRegistry
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Counter {
	return &counter{
		log:      p.Log.Named("usage"),
		repo:     p.Repo,
		periods:  p.Periods,
		counters: p.Counters,
		metrics:  p.Metrics,
	}
}

func (c *counter) CurrentUsage(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (int64, error) {
	if cfg.PerPeriod() {
		start, _, err := c.periods.WindowFor(ctx, ref, cfg)
		if err != nil {
			return 0, err
		}
		return c.repo.WindowUsed(ctx, ref, cfg.Key, start)
	}

	fn, ok := c.counters[cfg.Key]
	if !ok {
		return 0, domain.ErrNoCounterRegistered
	}
	used, err := fn(ctx, ref)
	if err != nil {
		return 0, errors.Join(domain.ErrCountFailed, err)
	}
	return used, nil
}

func (c *counter) Remaining(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (int64, error) {
	if cfg.Unlimited() {
		return plan.Unlimited, nil
	}
	used, err := c.CurrentUsage(ctx, ref, cfg)
	if err != nil {
		return 0, err
	}
	if used >= cfg.Cap {
		return 0, nil
	}
	return cfg.Cap - used, nil
}

func (c *counter) PercentUsed(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (float64, error) {
	if cfg.Unlimited() || cfg.Cap == 0 {
		return 0.0, nil
	}
	used, err := c.CurrentUsage(ctx, ref, cfg)
	if err != nil {
		return 0, err
	}
	pct := float64(used) / float64(cfg.Cap) * 100
	return min(pct, 100.0), nil
}

func (c *counter) Record(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if !cfg.PerPeriod() {
		return nil
	}
	start, end, err := c.periods.WindowFor(ctx, ref, cfg)
	if err != nil {
		return err
	}
	if err := c.repo.Increment(ctx, ref, cfg.Key, start, end, amount); err != nil {
		return err
	}
	c.metrics.IncUsageIncrement(cfg.Key)
	return nil
}
