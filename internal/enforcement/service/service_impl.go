// Package service implements limit evaluation and the exceeded/grace/blocked
// lifecycle. Reads are lock-free; every state transition takes a row-level
// lock so concurrent evaluations settle on exactly one transition.
package service

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/planfence/planfence/internal/callback"
	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/enforcement/domain"
	"github.com/planfence/planfence/internal/enforcement/repository"
	obsmetrics "github.com/planfence/planfence/internal/observability/metrics"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/period"
	"github.com/planfence/planfence/internal/plan"
	usagedomain "github.com/planfence/planfence/internal/usage/domain"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Plans      domain.PlanResolver
	Usage      usagedomain.Counter
	Periods    *period.Calculator
	States     *repository.StateRepository
	Dispatcher *callback.Dispatcher
	Metrics    *obsmetrics.Metrics `optional:"true"`
	Messages   MessageBuilder      `optional:"true"`
}

type service struct {
	log        *zap.Logger
	clock      clock.Clock
	plans      domain.PlanResolver
	usage      usagedomain.Counter
	periods    *period.Calculator
	states     *repository.StateRepository
	dispatcher *callback.Dispatcher
	metrics    *obsmetrics.Metrics
	messages   MessageBuilder
}

func NewService(p Params) domain.Service {
	msg := p.Messages
	if msg == nil {
		msg = DefaultMessage
	}
	return &service{
		log:        p.Log.Named("enforcement"),
		clock:      p.Clock,
		plans:      p.Plans,
		usage:      p.Usage,
		periods:    p.Periods,
		states:     p.States,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
		messages:   msg,
	}
}

func (s *service) Evaluate(ctx context.Context, req domain.EvaluateRequest) (domain.Result, error) {
	res, _, err := s.evaluate(ctx, req)
	return res, err
}

func (s *service) Consume(ctx context.Context, req domain.EvaluateRequest) (domain.Result, error) {
	res, cfg, err := s.evaluate(ctx, req)
	if err != nil {
		return res, err
	}
	if !res.Allowed() {
		return res, nil
	}
	if err := s.usage.Record(ctx, req.Owner, cfg, req.Amount); err != nil {
		return res, err
	}
	return res, nil
}

func (s *service) RequireFeature(ctx context.Context, ref owner.Ref, feature string) error {
	p, err := s.plans.EffectivePlanFor(ctx, ref)
	if err != nil {
		return err
	}
	if !p.HasFeature(feature) {
		return &plan.FeatureNotAvailableError{Feature: feature, Owner: ref, PlanKey: p.Key}
	}
	return nil
}

func (s *service) evaluate(ctx context.Context, req domain.EvaluateRequest) (domain.Result, plan.LimitConfig, error) {
	if req.Amount < 0 {
		return domain.Result{}, plan.LimitConfig{}, domain.ErrInvalidAmount
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	if !req.Owner.Valid() {
		return domain.Result{}, plan.LimitConfig{}, owner.ErrInvalidRef
	}

	p, err := s.plans.EffectivePlanFor(ctx, req.Owner)
	if err != nil {
		return domain.Result{}, plan.LimitConfig{}, err
	}
	cfg, configured := p.LimitFor(req.LimitKey)
	if !configured {
		// Fail closed: an unconfigured key means the plan does not
		// grant the capability at all.
		res := s.finish(domain.Result{
			State:    domain.StateBlocked,
			LimitKey: req.LimitKey,
			Owner:    req.Owner,
			Metadata: domain.Metadata{Limit: 0, SystemOverride: req.SystemOverride},
		}, req)
		res.Message = notConfiguredMessage(req.LimitKey, p.Key)
		return res, plan.LimitConfig{}, nil
	}

	if cfg.Unlimited() {
		res := s.finish(domain.Result{
			State:    domain.StateWithin,
			LimitKey: cfg.Key,
			Owner:    req.Owner,
			Metadata: domain.Metadata{Limit: plan.Unlimited, Remaining: plan.Unlimited},
		}, req)
		return res, cfg, nil
	}

	var winStart, winEnd time.Time
	if cfg.PerPeriod() {
		winStart, winEnd, err = s.periods.WindowFor(ctx, req.Owner, cfg)
		if err != nil {
			return domain.Result{}, cfg, err
		}
	}

	used, err := s.usage.CurrentUsage(ctx, req.Owner, cfg)
	if err != nil {
		return domain.Result{}, cfg, err
	}

	st, err := s.states.Find(ctx, req.Owner, cfg.Key)
	if err != nil {
		return domain.Result{}, cfg, err
	}
	st, err = s.heal(ctx, req.Owner, cfg, st, used, winStart)
	if err != nil {
		return domain.Result{}, cfg, err
	}

	md := domain.Metadata{
		Used:        used,
		Limit:       cfg.Cap,
		PercentUsed: percentUsed(used, cfg.Cap),
		Remaining:   remaining(used, cfg.Cap),
	}
	res := domain.Result{State: domain.StateWithin, LimitKey: cfg.Key, Owner: req.Owner, Metadata: md}

	if used+req.Amount <= cfg.Cap {
		if threshold, crossed := crossedThreshold(cfg, used+req.Amount); crossed {
			fired, err := s.maybeEmitWarning(ctx, req.Owner, cfg, threshold, used, winStart, winEnd)
			if err != nil {
				return domain.Result{}, cfg, err
			}
			if fired {
				res.State = domain.StateWarning
			}
		}
		return s.finish(res, req), cfg, nil
	}

	now := s.clock.Now().UTC()
	switch cfg.Policy {
	case plan.PolicyJustWarn:
		// Observability only: report the overage, never block, keep no
		// state row.
		res.State = domain.StateWarning
	case plan.PolicyBlockUsage:
		if _, err := s.markBlocked(ctx, req.Owner, cfg, md, winStart, winEnd); err != nil {
			return domain.Result{}, cfg, err
		}
		res.State = domain.StateBlocked
	case plan.PolicyGraceThenBlock:
		st, deadline, err := s.enterGrace(ctx, req.Owner, cfg, st, md, now, winStart, winEnd)
		if err != nil {
			return domain.Result{}, cfg, err
		}
		if st != nil && st.BlockedAt != nil {
			res.State = domain.StateBlocked
		} else {
			res.State = domain.StateGrace
			res.Metadata.GraceEndsAt = &deadline
		}
	}

	if res.State == domain.StateBlocked && req.SystemOverride {
		res.Metadata.SystemOverride = true
	}
	return s.finish(res, req), cfg, nil
}

// enterGrace moves a grace_then_block limit along its lifecycle: start the
// grace period on first exceedance, hold it while the deadline is ahead,
// block once it passes.
func (s *service) enterGrace(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, st *domain.EnforcementState, md domain.Metadata, now time.Time, winStart, winEnd time.Time) (*domain.EnforcementState, time.Time, error) {
	if st == nil || st.ExceededAt == nil {
		st, err := s.markExceeded(ctx, ref, cfg, md, winStart, winEnd)
		if err != nil {
			return nil, time.Time{}, err
		}
		deadline, _ := st.GraceDeadline(cfg.Grace)
		return st, deadline, nil
	}
	deadline, _ := st.GraceDeadline(cfg.Grace)
	if st.BlockedAt == nil && now.Before(deadline) {
		return st, deadline, nil
	}
	st, err := s.markBlocked(ctx, ref, cfg, md, winStart, winEnd)
	if err != nil {
		return nil, time.Time{}, err
	}
	return st, deadline, nil
}

func (s *service) finish(res domain.Result, req domain.EvaluateRequest) domain.Result {
	if res.Message == "" {
		res.Message = s.messages(res, s.clock.Now().UTC())
	}
	s.metrics.IncEvaluation(res.LimitKey, string(res.State))
	if res.State != domain.StateWithin {
		s.log.Debug("limit evaluated",
			zap.String("owner", req.Owner.String()),
			zap.String("limit_key", res.LimitKey),
			zap.String("state", string(res.State)),
			zap.Int64("used", res.Metadata.Used),
			zap.Int64("limit", res.Metadata.Limit),
		)
	}
	return res
}

// recoveredNow asks whether standing usage has real headroom again. Sitting
// exactly at the cap does not heal a flagged row: transitions fire when one
// more unit would not fit, and healing at the cap would let an owner reset
// the grace deadline by toggling a single unit.
func recoveredNow(used, cap int64) bool {
	return used < cap
}

func crossedThreshold(cfg plan.LimitConfig, wouldUse int64) (float64, bool) {
	if cfg.Cap <= 0 {
		return 0, false
	}
	var highest float64
	found := false
	for _, t := range cfg.WarningThresholds {
		if float64(wouldUse) >= t*float64(cfg.Cap) {
			highest = t
			found = true
		}
	}
	return highest, found
}

func remaining(used, cap int64) int64 {
	if r := cap - used; r > 0 {
		return r
	}
	return 0
}

func percentUsed(used, cap int64) float64 {
	if cap <= 0 {
		return 0
	}
	pct := float64(used) / float64(cap) * 100.0
	if pct > 100.0 {
		return 100.0
	}
	return pct
}
