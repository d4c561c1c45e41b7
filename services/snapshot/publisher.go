package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/services/ranking"
)

const contentType = "application/json"

// Uploader is the subset of *minio.Client the publisher needs.
type Uploader interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Summary struct {
	MinTransactionN   int64 `json:"min_transaction_n"`
	MaxTransactionN   int64 `json:"max_transaction_n"`
	TotalParticipants int64 `json:"total_participants"`
}

type Document struct {
	AwardPeriodID uint64            `json:"award_period_id"`
	RunID         string            `json:"run_id"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Summary       *Summary          `json:"summary,omitempty"`
	Steps         map[string]string `json:"steps,omitempty"`
}

// Publisher writes an immutable JSON snapshot of a period's ranking summary
// after every run.
type Publisher struct {
	uploader Uploader
	bucket   string
	now      func() time.Time
}

func NewPublisher(uploader Uploader, bucket string) *Publisher {
	return &Publisher{uploader: uploader, bucket: bucket, now: time.Now}
}

// ObjectName returns "summary/{awardPeriodID}/{timestamp}.json".
func ObjectName(awardPeriodID uint64, at time.Time) string {
	return fmt.Sprintf("summary/%d/%s.json", awardPeriodID, at.UTC().Format("20060102T150405Z"))
}

func (p *Publisher) Publish(ctx context.Context, awardPeriodID uint64, runID string, ext *ranking.CitizenRankingExt, steps map[string]string) (string, error) {
	at := p.now().UTC()
	doc := Document{
		AwardPeriodID: awardPeriodID,
		RunID:         runID,
		GeneratedAt:   at,
		Steps:         steps,
	}
	if ext != nil {
		doc.Summary = &Summary{
			MinTransactionN:   ext.MinTransactionN,
			MaxTransactionN:   ext.MaxTransactionN,
			TotalParticipants: ext.TotalParticipants,
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", errutil.Internal("encode snapshot", err)
	}

	name := ObjectName(awardPeriodID, at)
	_, err = p.uploader.PutObject(ctx, p.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"award-period-id": fmt.Sprint(awardPeriodID),
			"run-id":          runID,
		},
	})
	if err != nil {
		zap.L().Error("[Snapshot] upload failed", zap.String("object", name), zap.Error(err))
		return "", errutil.Internal("upload snapshot", err)
	}

	zap.L().Info("[Snapshot] uploaded", zap.String("bucket", p.bucket), zap.String("object", name))
	return name, nil
}
