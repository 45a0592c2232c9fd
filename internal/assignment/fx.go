package assignment

import (
	"go.uber.org/fx"

	"github.com/planfence/planfence/internal/assignment/domain"
	"github.com/planfence/planfence/internal/assignment/repository"
	"github.com/planfence/planfence/internal/assignment/service"
	enforcementdomain "github.com/planfence/planfence/internal/enforcement/domain"
)

// Module wires the assignment repository and service, and exposes the
// service as the plan resolver the evaluator uses.
var Module = fx.Module("assignment",
	fx.Provide(
		repository.New,
		service.NewService,
		func(s domain.Service) enforcementdomain.PlanResolver { return s },
	),
)
