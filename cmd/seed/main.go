package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cashback-ranking/pkg/config"
	"cashback-ranking/pkg/db"
	"cashback-ranking/pkg/gen"
	"cashback-ranking/pkg/logger"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/bootstrap"
	"cashback-ranking/services/transaction"
)

const (
	seedPeriodID = 1
	seedCitizens = 500
	seedBatch    = 500
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		fx.Provide(bootstrap.NewService),
		fx.Invoke(runSeed),
		fx.NopLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	_ = app.Stop(context.Background())
}

func runSeed(lc fx.Lifecycle, zlog *zap.Logger, b *bootstrap.Service, gdb *gorm.DB, ids *gen.SnowflakeNode) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := b.Migrate(ctx); err != nil {
				return err
			}
			if err := seedPeriod(ctx, zlog, gdb); err != nil {
				return err
			}
			return seedPayments(ctx, zlog, gdb, ids)
		},
	})
}

func seedPeriod(ctx context.Context, zlog *zap.Logger, gdb *gorm.DB) error {
	now := time.Now().UTC()
	p := &awardperiod.AwardPeriod{
		ID:                      seedPeriodID,
		Status:                  awardperiod.StatusActive,
		StartDate:               now.AddDate(0, -1, 0),
		EndDate:                 now.AddDate(0, 5, 0),
		MinPosition:             100,
		MaxPeriodCashback:       decimal.NewFromInt(150),
		MaxTransactionEvaluated: decimal.NewFromInt(150),
		CashbackPercentage:      decimal.NewFromInt(10),
		MinTransactionNumber:    50,
		MaxDailyPayments:        50,
	}
	if err := gdb.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
		return err
	}
	zlog.Info("[seed] award period ready", zap.Uint64("award_period_id", p.ID))
	return nil
}

// seedPayments writes a skewed number of payments per citizen so the ranking
// has ties at every depth.
func seedPayments(ctx context.Context, zlog *zap.Logger, gdb *gorm.DB, ids *gen.SnowflakeNode) error {
	now := time.Now().UTC()
	var batch []*transaction.WinningTransaction
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := gdb.WithContext(ctx).CreateInBatches(batch, seedBatch).Error; err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for c := 0; c < seedCitizens; c++ {
		fiscalCode := fmt.Sprintf("CTZ%013d", c)
		n := 1 + rand.IntN(1+c%60)
		for i := 0; i < n; i++ {
			amount := decimal.NewFromInt(int64(5 + rand.IntN(200)))
			batch = append(batch, &transaction.WinningTransaction{
				AcquirerCode:  "SEED",
				AcquirerID:    "1",
				IDTrxAcquirer: ids.GenerateID().String(),
				TrxTimestamp:  now.Add(-time.Duration(rand.IntN(30*24)) * time.Hour),
				OperationType: transaction.OperationPayment,
				CorrelationID: ids.GenerateID().String(),
				FiscalCode:    fiscalCode,
				AwardPeriodID: seedPeriodID,
				Amount:        amount,
				Score:         amount.Mul(decimal.NewFromInt(10)).Div(decimal.NewFromInt(100)).Round(2),
			})
			if len(batch) >= seedBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	zlog.Info("[seed] payments written", zap.Int("transactions", total), zap.Int("citizens", seedCitizens))
	return nil
}
