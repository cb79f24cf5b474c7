package gateway

import (
	"github.com/suscribo/paygate/internal/config"
	"github.com/suscribo/paygate/internal/gateway/dlocal"
	"github.com/suscribo/paygate/internal/gateway/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func(holder *config.GatewayConfigHolder, log *zap.Logger) *dlocal.Client {
		return dlocal.NewClient(holder, log)
	}),
	fx.Provide(func(holder *config.GatewayConfigHolder, log *zap.Logger) *stripe.Client {
		return stripe.NewClient(holder, log)
	}),
)
