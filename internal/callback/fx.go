package callback

import (
	obsmetrics "github.com/planfence/planfence/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func provideDispatcher(log *zap.Logger, m *obsmetrics.Metrics) *Dispatcher {
	return NewDispatcher(log, m)
}

// Module wires the lifecycle event dispatcher.
var Module = fx.Module("callback",
	fx.Provide(provideDispatcher),
)
