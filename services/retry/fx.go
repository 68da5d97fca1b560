package retry

import (
	"promptcron/services/trigger"

	"go.uber.org/fx"
)

var Module = fx.Module("retry.coordinator",
	fx.Provide(
		func(r *trigger.Registry) Scheduler { return r },
		NewCoordinator,
	),
)
