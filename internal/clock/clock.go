package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for enforcement decisions so tests can travel
// across grace deadlines and period boundaries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewSystem returns the wall clock.
func NewSystem() Clock { return systemClock{} }

// Module wires the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
