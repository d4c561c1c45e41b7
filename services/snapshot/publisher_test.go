package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/services/ranking"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockUploader struct {
	PutObjectFn func(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

func (m *mockUploader) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.PutObjectFn(ctx, bucketName, objectName, reader, objectSize, opts)
}

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 5, 10, 9, 30, 5, 0, time.FixedZone("CET", 3600))
	require.Equal(t, "summary/42/20240510T083005Z.json", ObjectName(42, at))
}

func TestPublishUploadsSummary(t *testing.T) {
	var (
		gotBucket, gotName string
		gotBody            []byte
		gotOpts            minio.PutObjectOptions
	)
	up := &mockUploader{PutObjectFn: func(_ context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
		gotBucket, gotName, gotOpts = bucket, name, opts
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, int64(len(b)), size)
		gotBody = b
		return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
	}}

	p := NewPublisher(up, "rankings")
	p.now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }

	name, err := p.Publish(context.Background(), 42, "1234", &ranking.CitizenRankingExt{
		AwardPeriodID: 42, MinTransactionN: 3, MaxTransactionN: 40, TotalParticipants: 1000,
	}, map[string]string{"cashback-update": "success"})
	require.NoError(t, err)
	require.Equal(t, "summary/42/20240510T090000Z.json", name)
	require.Equal(t, "rankings", gotBucket)
	require.Equal(t, name, gotName)
	require.Equal(t, "application/json", gotOpts.ContentType)
	require.Equal(t, "1234", gotOpts.UserMetadata["run-id"])

	var doc Document
	require.NoError(t, json.Unmarshal(gotBody, &doc))
	require.Equal(t, uint64(42), doc.AwardPeriodID)
	require.Equal(t, int64(1000), doc.Summary.TotalParticipants)
	require.Equal(t, "success", doc.Steps["cashback-update"])
}

func TestPublishWithoutSummary(t *testing.T) {
	var gotBody []byte
	up := &mockUploader{PutObjectFn: func(_ context.Context, _, _ string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
		gotBody, _ = io.ReadAll(r)
		return minio.UploadInfo{}, nil
	}}

	_, err := NewPublisher(up, "rankings").Publish(context.Background(), 1, "1", nil, nil)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(gotBody, &doc))
	require.Nil(t, doc.Summary)
}

func TestPublishFailure(t *testing.T) {
	up := &mockUploader{PutObjectFn: func(context.Context, string, string, io.Reader, int64, minio.PutObjectOptions) (minio.UploadInfo, error) {
		return minio.UploadInfo{}, errors.New("access denied")
	}}

	_, err := NewPublisher(up, "rankings").Publish(context.Background(), 1, "1", nil, nil)
	require.True(t, errutil.HasStatus(err, errutil.StatusInternal))
}
