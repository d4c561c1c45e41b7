package dailylimit

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
	"cashback-ranking/services/workerlock"
)

var Module = fx.Module("dailylimit",
	fx.Provide(ProvideDetector),
)

type Params struct {
	fx.In
	DB           *gorm.DB
	Transactions transaction.Store
	Rankings     ranking.Store
	Locks        workerlock.Coordinator
}

func ProvideDetector(p Params) *Detector {
	return NewDetector(p.DB, p.Transactions, p.Rankings, p.Locks)
}
