package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cashback-ranking/pkg/config"
	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/execution"
	"cashback-ranking/pkg/featureflags"
	"cashback-ranking/pkg/gen"
	"cashback-ranking/pkg/metrics"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/cachesync"
	"cashback-ranking/services/cashback"
	"cashback-ranking/services/dailylimit"
	"cashback-ranking/services/milestone"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/workerlock"
)

const tracerName = "services/orchestrator"

// Flagsmith overrides of the configured parallel switches.
const (
	FlagCashbackParallel = "cashback_parallel"
	FlagRankingParallel  = "ranking_parallel"
)

type DailyLimitRunner interface {
	Run(ctx context.Context, period *awardperiod.AwardPeriod, opts dailylimit.Options) (*dailylimit.Result, error)
}

type CashbackRunner interface {
	Run(ctx context.Context, period *awardperiod.AwardPeriod, opts cashback.RunOptions) (*cashback.Result, error)
}

type RankingRunner interface {
	Run(ctx context.Context, period *awardperiod.AwardPeriod, opts ranking.RunOptions) (*ranking.Result, error)
}

type MilestoneRunner interface {
	Run(ctx context.Context, period *awardperiod.AwardPeriod, opts milestone.Options) (*milestone.Result, error)
}

type CacheSyncer interface {
	Run(ctx context.Context, awardPeriodID uint64, opts cachesync.Options) (*cachesync.Result, error)
}

type SnapshotPublisher interface {
	Publish(ctx context.Context, awardPeriodID uint64, runID string, ext *ranking.CitizenRankingExt, steps map[string]string) (string, error)
}

// Deps are the collaborators of a Service. CacheSync and Snapshot are optional.
type Deps struct {
	DB         *gorm.DB
	IDs        *gen.SnowflakeNode
	Periods    awardperiod.Client
	Flags      featureflags.FeatureFlag
	DailyLimit DailyLimitRunner
	Cashback   CashbackRunner
	Ranking    RankingRunner
	Milestone  MilestoneRunner
	CacheSync  CacheSyncer
	Snapshot   SnapshotPublisher
	Config     config.Ranking
	// Settings, when set, is read at the start of every run so remote config
	// changes apply without a restart.
	Settings func() config.Ranking
}

// Service runs the sub-process sequence of an award period.
type Service struct {
	Deps
	now func() time.Time
}

func New(deps Deps) *Service {
	deps.Config.ApplyDefaults()
	return &Service{Deps: deps, now: time.Now}
}

func (s *Service) settings() config.Ranking {
	if s.Settings == nil {
		return s.Config
	}
	cfg := s.Settings()
	cfg.ApplyDefaults()
	return cfg
}

type step struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// RunForAllActivePeriods runs every active period in id order. A failed period
// does not stop the others; the joined error is returned at the end.
func (s *Service) RunForAllActivePeriods(ctx context.Context) error {
	periods, err := s.Periods.ListActive(ctx)
	if err != nil {
		zap.L().Error("[Orchestrator] failed to list active periods", zap.Error(err))
		return errutil.Internal("list active award periods", err)
	}

	var errs []error
	for _, p := range periods {
		stopAt := s.now().Add(s.settings().MaxRunDuration)
		if _, err := s.RunForPeriod(ctx, p.ID, &stopAt); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return errors.Join(errs...)
}

// RunForPeriod executes daily limits, cashback, ranking, milestone, cache sync
// and snapshot in order. The stop time is checked between sub-processes only.
func (s *Service) RunForPeriod(ctx context.Context, awardPeriodID uint64, stopAt *time.Time) (*Report, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "RunForPeriod", trace.WithAttributes(
		attribute.Int64("award_period.id", int64(awardPeriodID)),
	))
	defer span.End()

	period, err := s.Periods.GetByID(ctx, awardPeriodID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if period.Status != awardperiod.StatusActive {
		return nil, errutil.BadRequest("award period is not active", nil, errutil.WithDetails(errutil.Detail{
			Field:   "award_period_id",
			Message: period.Status,
		}))
	}

	run := &Run{
		ID:            s.IDs.GenerateID().String(),
		AwardPeriodID: period.ID,
		Status:        RunStatusRunning,
		StartedAt:     s.now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(run).Error; err != nil {
		zap.L().Error("[Orchestrator] failed to create run record", zap.Uint64("award_period_id", period.ID), zap.Error(err))
		return nil, errutil.Internal("create run record", err)
	}
	span.SetAttributes(attribute.String("run.id", run.ID))

	zap.L().Info("[Orchestrator] run started",
		zap.String("run_id", run.ID),
		zap.Uint64("award_period_id", period.ID),
	)

	report := &Report{RunID: run.ID, AwardPeriodID: period.ID, Status: RunStatusRunning}
	var runErr error
	for _, st := range s.steps(period, stopAt, report) {
		if stopAt != nil && !s.now().Before(*stopAt) {
			report.Interrupted = true
			zap.L().Warn("[Orchestrator] stop time reached",
				zap.String("run_id", run.ID),
				zap.String("next_step", st.name),
			)
			break
		}
		outcome, err := s.runStep(ctx, st)
		report.Steps = append(report.Steps, outcome)
		if err != nil {
			runErr = err
			break
		}
	}

	report.Status = finalStatus(report, runErr)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	s.finish(ctx, run, report, runErr)
	metrics.RunsTotal.WithLabelValues(report.Status).Inc()

	zap.L().Info("[Orchestrator] run finished",
		zap.String("run_id", run.ID),
		zap.Uint64("award_period_id", period.ID),
		zap.String("status", report.Status),
		zap.Bool("interrupted", report.Interrupted),
	)
	return report, runErr
}

func (s *Service) steps(period *awardperiod.AwardPeriod, stopAt *time.Time, report *Report) []step {
	cfg := s.settings()
	user := cfg.UpdateUser
	var summary *ranking.CitizenRankingExt

	var steps []step
	if cfg.DailyLimitEnabled {
		steps = append(steps, step{name: StepDailyLimit, run: func(ctx context.Context) (int64, error) {
			res, err := s.DailyLimit.Run(ctx, period, dailylimit.Options{Workers: cfg.DailyLimitWorkers, User: user})
			if err != nil {
				return 0, err
			}
			return res.Discarded, nil
		}})
	}

	steps = append(steps,
		step{name: StepCashback, run: func(ctx context.Context) (int64, error) {
			parallel := featureflags.Bool(ctx, s.Flags, FlagCashbackParallel, cfg.CashbackParallel)
			res, err := s.Cashback.Run(ctx, period, cashback.RunOptions{
				Limit:    cfg.CashbackLimit,
				Strategy: execution.New(parallel, cfg.ParallelWorkers),
				User:     user,
			})
			if err != nil {
				return 0, err
			}
			return res.Transactions, nil
		}},
		step{name: StepRanking, run: func(ctx context.Context) (int64, error) {
			parallel := featureflags.Bool(ctx, s.Flags, FlagRankingParallel, cfg.RankingParallel)
			res, err := s.Ranking.Run(ctx, period, ranking.RunOptions{
				Limit:    cfg.RankingLimit,
				Strategy: execution.New(parallel, cfg.ParallelWorkers),
				User:     user,
			})
			if err != nil {
				return 0, err
			}
			summary = res.Summary
			return res.Ranked, nil
		}},
		step{name: StepMilestone, run: func(ctx context.Context) (int64, error) {
			res, err := s.Milestone.Run(ctx, period, milestone.Options{
				Workers:  cfg.MilestoneWorkers,
				Limit:    cfg.MilestoneLimit,
				MaxRows:  cfg.MilestoneMaxRows,
				MaxRetry: cfg.MilestoneMaxRetry,
				StopAt:   stopAt,
				User:     user,
			})
			if err != nil {
				return 0, err
			}
			if res.Interrupted {
				report.Interrupted = true
			}
			return res.Rows, nil
		}},
	)

	if cfg.RedisSyncEnabled && s.CacheSync != nil {
		steps = append(steps, step{name: StepRedisSync, run: func(ctx context.Context) (int64, error) {
			res, err := s.CacheSync.Run(ctx, period.ID, cachesync.Options{
				Limit:   cfg.RankingLimit,
				TTL:     cfg.RedisSyncTTL,
				Ceiling: period.MaxPeriodCashback,
			})
			if err != nil {
				return 0, err
			}
			return res.Entries, nil
		}})
	}

	if cfg.SnapshotEnabled && s.Snapshot != nil {
		steps = append(steps, step{name: StepSnapshot, run: func(ctx context.Context) (int64, error) {
			statuses := make(map[string]string, len(report.Steps))
			for _, o := range report.Steps {
				statuses[o.Step] = o.Status
			}
			name, err := s.Snapshot.Publish(ctx, period.ID, report.RunID, summary, statuses)
			if err != nil {
				return 0, err
			}
			report.Snapshot = name
			return 1, nil
		}})
	}
	return steps
}

func (s *Service) runStep(ctx context.Context, st step) (StepOutcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, st.name)
	defer span.End()

	started := time.Now()
	rows, err := st.run(ctx)
	elapsed := time.Since(started)

	outcome := StepOutcome{Step: st.name, Rows: rows, Duration: elapsed.String()}
	switch {
	case errors.Is(err, workerlock.ErrSkipped):
		outcome.Status = RunStatusSkipped
		err = nil
	case err != nil:
		outcome.Status = RunStatusFailed
		outcome.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zap.L().Error("[Orchestrator] step failed", zap.String("step", st.name), zap.Error(err))
	default:
		outcome.Status = RunStatusSuccess
	}

	span.SetAttributes(
		attribute.String("step.status", outcome.Status),
		attribute.Int64("step.rows", rows),
	)
	metrics.ProcessDuration.WithLabelValues(st.name, outcome.Status).Observe(elapsed.Seconds())
	return outcome, err
}

func finalStatus(report *Report, runErr error) string {
	if runErr != nil {
		return RunStatusFailed
	}
	for _, o := range report.Steps {
		if o.Status == RunStatusSuccess {
			return RunStatusSuccess
		}
	}
	return RunStatusSkipped
}

// finish closes the run record. A failure here is logged, the run outcome stands.
func (s *Service) finish(ctx context.Context, run *Run, report *Report, runErr error) {
	completed := s.now().UTC()
	updates := map[string]any{
		"status":       report.Status,
		"completed_at": completed,
	}
	if runErr != nil {
		updates["error_msg"] = runErr.Error()
	}
	if meta, err := json.Marshal(report); err == nil {
		updates["metadata"] = datatypes.JSON(meta)
	}

	if err := s.DB.WithContext(context.WithoutCancel(ctx)).
		Model(&Run{}).
		Where("id = ?", run.ID).
		Updates(updates).Error; err != nil {
		zap.L().Error("[Orchestrator] failed to close run record", zap.String("run_id", run.ID), zap.Error(err))
	}
}
