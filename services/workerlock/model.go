package workerlock

import "time"

// Process names double as the primary key of the worker_locks rows.
const (
	ProcessCashbackUpdate     = "cashback-update"
	ProcessRankingUpdate      = "ranking-update"
	ProcessMilestoneUpdate    = "milestone-update"
	ProcessRedisSync          = "redis-sync"
	ProcessDailyPaymentLimits = "daily-payment-limit-detector"
)

// Processes lists every sub-process that owns a lock row.
var Processes = []string{
	ProcessCashbackUpdate,
	ProcessRankingUpdate,
	ProcessMilestoneUpdate,
	ProcessRedisSync,
	ProcessDailyPaymentLimits,
}

// ExclusiveAgainst is the pairwise exclusion table: a process may only enter
// while every process listed for it has a zero worker count.
var ExclusiveAgainst = map[string][]string{
	ProcessCashbackUpdate:     {ProcessRankingUpdate},
	ProcessRankingUpdate:      {ProcessCashbackUpdate, ProcessMilestoneUpdate},
	ProcessMilestoneUpdate:    {ProcessCashbackUpdate, ProcessRankingUpdate},
	ProcessRedisSync:          {ProcessCashbackUpdate, ProcessRankingUpdate, ProcessMilestoneUpdate},
	ProcessDailyPaymentLimits: {ProcessDailyPaymentLimits},
}

type WorkerLock struct {
	ProcessName string    `gorm:"column:process_name;primaryKey;type:varchar(64)"`
	WorkerCount int64     `gorm:"column:worker_count;not null;default:0"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (WorkerLock) TableName() string {
	return "worker_locks"
}
