package audit

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("audit",
	fx.Provide(NewService),
	fx.Invoke(func(db *gorm.DB) error {
		return Migrate(db)
	}),
)
