package period

import (
	"fmt"
	"time"

	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/config"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Clock   clock.Clock
	Cfg     config.Config
	Billing BillingPeriodProvider `optional:"true"`
}

func newCalculator(p Params) (*Calculator, error) {
	loc, err := time.LoadLocation(p.Cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluation timezone %q: %w", p.Cfg.Timezone, err)
	}
	return NewCalculator(p.Clock, p.Billing, loc), nil
}

// Module wires the period calculator.
var Module = fx.Module("period",
	fx.Provide(newCalculator),
)
