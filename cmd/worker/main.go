// Package main はジョブワーカーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/config"
	"github.com/yourusername/file-forge/internal/jobs"
	"github.com/yourusername/file-forge/internal/tools"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	store, err := jobs.NewStore(pool)
	if err != nil {
		log.Fatalf("Failed to set up job store: %v", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.Init(initCtx); err != nil {
		cancel()
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	cancel()

	blobs, err := blob.NewS3Store(blob.S3Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		log.Fatalf("Failed to set up blob store: %v", err)
	}

	toolService, err := tools.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to set up tool service: %v", err)
	}

	softTimeout := time.Duration(cfg.TaskSoftTimeoutMinutes) * time.Minute
	runner, err := jobs.NewRunner(store, blobs, toolService, softTimeout, log.Default())
	if err != nil {
		log.Fatalf("Failed to set up job runner: %v", err)
	}

	sweeper, err := jobs.NewSweeper(store, blobs, cfg, log.Default())
	if err != nil {
		log.Fatalf("Failed to set up sweeper: %v", err)
	}

	worker, err := jobs.NewWorker(cfg, runner, sweeper, log.Default())
	if err != nil {
		log.Fatalf("Failed to set up worker: %v", err)
	}

	log.Printf("Starting job worker (concurrency: %d)", cfg.WorkerConcurrency)
	if err := worker.Run(); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
}
