package minio

import (
	"context"

	"cashback-ranking/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient))

// registerClient returns nil when snapshots are disabled or no endpoint is set.
func registerClient(lc fx.Lifecycle, c *config.Config) (*minio.Client, error) {
	if !c.Ranking.SnapshotEnabled || c.Minio.Endpoint == "" {
		zap.L().Info("[MinIO] snapshots disabled")
		return nil, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Error("[MinIO] failed to create client", zap.Error(err))
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureBucket(ctx, client, c.Minio.BucketName)
		},
	})

	zap.L().Info("[MinIO] client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	return client, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		zap.L().Error("[MinIO] failed to check bucket", zap.String("bucket", bucket), zap.Error(err))
		return err
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		zap.L().Error("[MinIO] failed to create bucket", zap.String("bucket", bucket), zap.Error(err))
		return err
	}
	zap.L().Info("[MinIO] bucket created", zap.String("bucket", bucket))
	return nil
}
