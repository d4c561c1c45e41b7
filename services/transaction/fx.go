package transaction

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("transaction.store",
	fx.Provide(ProvideStore),
)

type Params struct {
	fx.In
	DB *gorm.DB
}

func ProvideStore(p Params) Store {
	return NewStore(p.DB)
}
