package usage

import (
	"github.com/planfence/planfence/internal/usage/repository"
	"github.com/planfence/planfence/internal/usage/service"
	"go.uber.org/fx"
)

// Module wires the usage repository and counter service. The CounterRegistry
// for persistent caps is provided by the integration layer.
var Module = fx.Module("usage",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
