package cashback

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
	"cashback-ranking/services/workerlock"
)

var Module = fx.Module("cashback",
	fx.Provide(ProvideUpdater),
)

type Params struct {
	fx.In
	DB           *gorm.DB
	Transactions transaction.Store
	Rankings     ranking.Store
	Locks        workerlock.Coordinator
}

func ProvideUpdater(p Params) *Updater {
	return NewUpdater(p.DB, p.Transactions, p.Rankings, p.Locks)
}
