package service

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/planfence/planfence/internal/assignment/domain"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Repo    domain.Repository
	Catalog *plan.Catalog
}

type service struct {
	log     *zap.Logger
	repo    domain.Repository
	catalog *plan.Catalog
}

func NewService(p Params) domain.Service {
	return &service{
		log:     p.Log.Named("assignment"),
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

func (s *service) Assign(ctx context.Context, ref owner.Ref, planKey string, source domain.Source) error {
	if !ref.Valid() {
		return owner.ErrInvalidRef
	}
	if _, ok := s.catalog.Plan(planKey); !ok {
		return fmt.Errorf("%w: %q", plan.ErrPlanNotFound, planKey)
	}
	switch source {
	case domain.SourceManual, domain.SourceAdmin, domain.SourceBillingSync:
	case "":
		source = domain.SourceManual
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownSource, source)
	}
	if err := s.repo.Upsert(ctx, ref, planKey, source); err != nil {
		return err
	}
	s.log.Info("plan assigned",
		zap.String("owner", ref.String()),
		zap.String("plan_key", planKey),
		zap.String("source", string(source)),
	)
	return nil
}

func (s *service) Clear(ctx context.Context, ref owner.Ref) error {
	if !ref.Valid() {
		return owner.ErrInvalidRef
	}
	return s.repo.Delete(ctx, ref)
}

// EffectivePlanFor resolves the governing plan: the assigned one when present
// and still in the catalog, the default otherwise. An assignment pointing at
// a plan that was removed from the catalog degrades to the default with a
// warning rather than failing every evaluation.
func (s *service) EffectivePlanFor(ctx context.Context, ref owner.Ref) (plan.Plan, error) {
	a, err := s.repo.ForOwner(ctx, ref)
	if err != nil {
		return plan.Plan{}, err
	}
	if a == nil {
		return s.catalog.Default(), nil
	}
	p, ok := s.catalog.Plan(a.PlanKey)
	if !ok {
		s.log.Warn("assigned plan missing from catalog, using default",
			zap.String("owner", ref.String()),
			zap.String("plan_key", a.PlanKey),
		)
		return s.catalog.Default(), nil
	}
	return p, nil
}
