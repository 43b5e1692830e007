package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/config"
	"github.com/yourusername/file-forge/internal/jobs"
	"github.com/yourusername/file-forge/internal/ratelimit"
)

// setupStore はPostgresに接続し、ジョブテーブルを初期化したストアを返します。
func setupStore(ctx context.Context, cfg *config.Config) (*jobs.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	store, err := jobs.NewStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.Init(initCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// setupBlobStore はS3互換ストレージへのクライアントを組み立てます。
func setupBlobStore(cfg *config.Config) (blob.Store, error) {
	return blob.NewS3Store(blob.S3Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
}

// setupLimiter はツール別の受付回数を数えるRedisベースのリミッターを返します。
func setupLimiter(cfg *config.Config) (*ratelimit.Limiter, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	limits := map[string]int{
		"merge":    cfg.RateLimitMerge,
		"compress": cfg.RateLimitCompress,
		"reduce":   cfg.RateLimitReduce,
		"convert":  cfg.RateLimitConvert,
	}
	return ratelimit.NewLimiter(redisClient, limits)
}
