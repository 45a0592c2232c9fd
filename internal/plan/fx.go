package plan

import (
	"github.com/planfence/planfence/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewCatalogFromConfig loads and validates the plan catalog at boot.
func NewCatalogFromConfig(cfg config.Config, log *zap.Logger) (*Catalog, error) {
	plans, err := LoadPlans(cfg.PlanPaths)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(plans)
	if err != nil {
		return nil, err
	}
	log.Named("plan").Info("plan catalog loaded",
		zap.Int("plans", len(catalog.Plans())),
		zap.String("default", catalog.DefaultKey()),
	)
	return catalog, nil
}

// Module wires the plan catalog.
var Module = fx.Module("plan",
	fx.Provide(NewCatalogFromConfig),
)
