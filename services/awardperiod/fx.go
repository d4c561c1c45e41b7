package awardperiod

import (
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("awardperiod.client",
	fx.Provide(ProvideClient),
)

type Params struct {
	fx.In
	DB *gorm.DB
}

func ProvideClient(p Params) Client {
	return NewCachedClient(NewGormClient(p.DB), 256, 5*time.Minute)
}
