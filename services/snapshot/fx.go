package snapshot

import (
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"

	"cashback-ranking/pkg/config"
)

var Module = fx.Module("snapshot",
	fx.Provide(ProvidePublisher),
)

type Params struct {
	fx.In
	Config *config.Config
	Client *minio.Client `optional:"true"`
}

// ProvidePublisher returns nil when no object store is configured; the
// orchestrator then skips snapshots.
func ProvidePublisher(p Params) *Publisher {
	if p.Client == nil {
		return nil
	}
	return NewPublisher(p.Client, p.Config.Minio.BucketName)
}
