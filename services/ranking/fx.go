package ranking

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"cashback-ranking/services/workerlock"
)

var Module = fx.Module("ranking",
	fx.Provide(
		ProvideStore,
		ProvideUpdater,
	),
)

type Params struct {
	fx.In
	DB    *gorm.DB
	Locks workerlock.Coordinator
}

func ProvideStore(p Params) Store {
	return NewStore(p.DB)
}

func ProvideUpdater(p Params, store Store) *Updater {
	return NewUpdater(p.DB, store, p.Locks)
}
