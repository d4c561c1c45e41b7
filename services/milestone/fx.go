package milestone

import (
	"go.uber.org/fx"

	"cashback-ranking/services/ranking"
	"cashback-ranking/services/workerlock"
)

var Module = fx.Module("milestone",
	fx.Provide(ProvideUpdater),
)

type Params struct {
	fx.In
	Rankings ranking.Store
	Locks    workerlock.Coordinator
}

func ProvideUpdater(p Params) *Updater {
	return NewUpdater(p.Rankings, p.Locks)
}
