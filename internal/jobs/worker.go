// Package jobs はジョブの受付・実行・保持期限管理までの非同期処理基盤を提供します。
package jobs

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/file-forge/internal/config"
)

// Worker はAsynqサーバーと定期実行スケジューラを束ねます。
// ツール別のキューを購読し、保持期限の掃除タスクを定期投入します。
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *log.Logger
}

// NewWorker は Worker を初期化し、タスクハンドラと定期実行を登録します。
func NewWorker(cfg *config.Config, runner *Runner, sweeper *Sweeper, logger *log.Logger) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if sweeper == nil {
		return nil, errors.New("sweeper is nil")
	}
	if logger == nil {
		logger = log.Default()
	}

	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"merge":          1,
				"compress":       1,
				"reduce":         1,
				"convert":        1,
				maintenanceQueue: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeMerge, runner.ProcessTask)
	mux.HandleFunc(taskTypeCompress, runner.ProcessTask)
	mux.HandleFunc(taskTypeReduce, runner.ProcessTask)
	mux.HandleFunc(taskTypeConvert, runner.ProcessTask)
	mux.HandleFunc(taskTypeJobSweep, sweeper.HandleJobSweep)
	mux.HandleFunc(taskTypeUploadSweep, sweeper.HandleUploadSweep)

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	sweepOpts := []asynq.Option{
		asynq.Queue(maintenanceQueue),
		asynq.MaxRetry(1),
		asynq.Timeout(10 * time.Minute),
	}
	if _, err := scheduler.Register(cfg.JobSweepSpec, asynq.NewTask(taskTypeJobSweep, nil), sweepOpts...); err != nil {
		return nil, fmt.Errorf("failed to register job sweep: %w", err)
	}
	if _, err := scheduler.Register(cfg.UploadSweepSpec, asynq.NewTask(taskTypeUploadSweep, nil), sweepOpts...); err != nil {
		return nil, fmt.Errorf("failed to register upload sweep: %w", err)
	}

	return &Worker{
		server:    server,
		mux:       mux,
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// Run はワーカーを起動し、停止シグナルを受けるまでブロックします。
func (w *Worker) Run() error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer w.scheduler.Shutdown()

	w.logger.Printf("starting worker (queues: merge/compress/reduce/convert/%s)", maintenanceQueue)
	if err := w.server.Run(w.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return fmt.Errorf("asynq server stopped with error: %w", err)
	}
	return nil
}
