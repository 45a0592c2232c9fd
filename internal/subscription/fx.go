package subscription

import (
	"github.com/planfence/planfence/internal/period"
	"github.com/planfence/planfence/internal/subscription/domain"
	"github.com/planfence/planfence/internal/subscription/repository"
	"go.uber.org/fx"
)

// Module wires the subscription repository and exposes it as the billing
// period source for the period calculator.
var Module = fx.Module("subscription",
	fx.Provide(
		repository.New,
		func(r domain.Repository) period.BillingPeriodProvider { return r },
	),
)
