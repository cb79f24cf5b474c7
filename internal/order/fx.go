package order

import (
	"github.com/suscribo/paygate/internal/order/repository"
	orderservice "github.com/suscribo/paygate/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(orderservice.NewService),
)
