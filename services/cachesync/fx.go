package cachesync

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"cashback-ranking/services/ranking"
	"cashback-ranking/services/workerlock"
)

var Module = fx.Module("cachesync",
	fx.Provide(
		ProvideSink,
		ProvideSyncer,
	),
)

func ProvideSink(rdb *redis.Client) Sink {
	return NewRedisSink(rdb)
}

type Params struct {
	fx.In
	Rankings ranking.Store
	Sink     Sink
	Locks    workerlock.Coordinator
}

func ProvideSyncer(p Params) *Syncer {
	return NewSyncer(p.Rankings, p.Sink, p.Locks)
}
