package orchestrator

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusSkipped = "skipped"
)

// Step names follow the worker lock process names.
const (
	StepDailyLimit = "daily-payment-limit-detector"
	StepCashback   = "cashback-update"
	StepRanking    = "ranking-update"
	StepMilestone  = "milestone-update"
	StepRedisSync  = "redis-sync"
	StepSnapshot   = "snapshot"
)

// Run is the execution record of one award period run.
type Run struct {
	ID            string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	AwardPeriodID uint64         `gorm:"column:award_period_id;index;not null" json:"award_period_id"`
	Status        string         `gorm:"column:status;type:varchar(20);not null" json:"status"` // running|success|failed|skipped
	ErrorMsg      string         `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	StartedAt     time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	CompletedAt   *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Run) TableName() string {
	return "ranking_runs"
}

// StepOutcome is what a run records about each sub-process.
type StepOutcome struct {
	Step     string `json:"step"`
	Status   string `json:"status"`
	Rows     int64  `json:"rows"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type Report struct {
	RunID         string        `json:"run_id"`
	AwardPeriodID uint64        `json:"award_period_id"`
	Status        string        `json:"status"`
	Interrupted   bool          `json:"interrupted"`
	Steps         []StepOutcome `json:"steps"`
	Snapshot      string        `json:"snapshot,omitempty"`
}

// RunPayload is the asynq payload of taskname.RankingPeriodRun.
type RunPayload struct {
	AwardPeriodID uint64     `json:"award_period_id"`
	StopAt        *time.Time `json:"stop_at,omitempty"`
}
