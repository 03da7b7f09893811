package cron

import (
	"context"
	"errors"
	"time"

	"consultly/config"
	"consultly/services/reconciliation"
	"consultly/utils"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const TypeReconciliationSweep = "reconciliation:sweep"

// InitSweepWorker starts the async worker that runs reconciliation sweeps and
// a cron scheduler that enqueues one every minute. Enqueueing through the
// queue rather than calling the sweeper inline keeps sweeps serialized when
// multiple instances run.
func InitSweepWorker(sweeper *reconciliation.Sweeper) {
	logger := utils.GetLogger()

	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReconciliationSweep, handleSweepTask(sweeper))

	go func() {
		logger.Info("starting reconciliation worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				logger.Error("reconciliation worker failed to start",
					zap.Int("attempt", attempts), zap.Error(err))

				if attempts == maxAttempts {
					logger.Fatal("reconciliation worker exhausted retries")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()

	go scheduleSweeps(redisOpts, logger)
}

func handleSweepTask(sweeper *reconciliation.Sweeper) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		logger := utils.GetLogger()

		report, err := sweeper.Run(ctx)
		if err != nil {
			logger.Error("reconciliation sweep failed", zap.Error(err))
			return err
		}

		if report.Expired > 0 || report.ForceEnded > 0 || report.Violations > 0 {
			logger.Info("reconciliation sweep completed",
				zap.Int("expired", report.Expired),
				zap.Int("forceEnded", report.ForceEnded),
				zap.Int("violations", report.Violations))
		}
		return nil
	}
}

// scheduleSweeps enqueues a sweep task once per minute. Unique guards against
// a backlog of identical tasks when a sweep runs long.
func scheduleSweeps(redisOpts asynq.RedisClientOpt, logger *zap.Logger) {
	client := asynq.NewClient(redisOpts)

	c := cron.New()
	_, err := c.AddFunc("* * * * *", func() {
		task := asynq.NewTask(TypeReconciliationSweep, nil)
		if _, err := client.Enqueue(task, asynq.Unique(time.Minute)); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
			logger.Error("failed to enqueue reconciliation sweep", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("failed to schedule reconciliation sweep", zap.Error(err))
	}
	c.Start()
}
