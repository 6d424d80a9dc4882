package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time.Now so cancellation-window and snapshot logic can be
// tested with a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystemClock() Clock { return systemClock{} }

// Module wires the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
