package paymethod

import (
	"go.uber.org/fx"
)

var Module = fx.Module("paymethod",
	fx.Provide(NewResolver),
)
