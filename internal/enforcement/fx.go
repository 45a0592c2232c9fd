package enforcement

import (
	"github.com/planfence/planfence/internal/enforcement/repository"
	"github.com/planfence/planfence/internal/enforcement/service"
	"go.uber.org/fx"
)

// Module wires the state repository and the evaluation service. A
// domain.PlanResolver must be provided elsewhere; the assignment module
// supplies the default one.
var Module = fx.Module("enforcement",
	fx.Provide(
		repository.NewStateRepository,
		service.NewService,
	),
)
