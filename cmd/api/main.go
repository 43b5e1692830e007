// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/config"
	"github.com/yourusername/file-forge/internal/jobs"
	"github.com/yourusername/file-forge/internal/session"
	"github.com/yourusername/file-forge/internal/upload"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	store, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up job store: %v", err)
	}

	blobs, err := setupBlobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to set up blob store: %v", err)
	}

	queue, err := jobs.NewQueue(cfg)
	if err != nil {
		log.Fatalf("Failed to set up task queue: %v", err)
	}
	defer queue.Close()

	orchestrator, err := jobs.NewOrchestrator(store, blobs, queue, cfg.MaxInputFiles, log.Default())
	if err != nil {
		log.Fatalf("Failed to set up orchestrator: %v", err)
	}

	limiter, err := setupLimiter(cfg)
	if err != nil {
		log.Fatalf("Failed to set up rate limiter: %v", err)
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	cookieStore := cookie.NewStore([]byte(cfg.SessionSecret))
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   session.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(session.SessionCookieName, cookieStore))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, blobs, orchestrator, limiter)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "file-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループとアップロード・ジョブ周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, blobs blob.Store, orchestrator *jobs.Orchestrator, limiter jobs.SubmitLimiter) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	presignExpiry := time.Duration(cfg.PresignExpireMinutes) * time.Minute
	uploadOpts := upload.HandlerOptions{
		MaxFileSize:   cfg.MaxFileSize,
		PresignExpiry: presignExpiry,
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
	}
	jobOpts := jobs.HandlerOptions{
		Limiter:        limiter,
		DownloadExpiry: presignExpiry,
	}

	api := router.Group("/api/v1")
	// 匿名セッションを払い出してから各ハンドラーへ
	api.Use(session.EnsureOwner())
	{
		uploadRoutes := api.Group("/upload")
		{
			uploadRoutes.POST("/presigned-url", upload.PresignHandler(blobs, uploadOpts))
			uploadRoutes.POST("/confirm-upload", upload.ConfirmHandler(blobs))
			uploadRoutes.DELETE("/cleanup-upload", upload.CleanupHandler(blobs))
			uploadRoutes.GET("/upload-status", upload.StatusHandler(blobs))
		}

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.POST("/start", jobs.StartJobHandler(orchestrator, jobOpts))
			jobRoutes.GET("/my-jobs", jobs.MyJobsHandler(orchestrator))
			jobRoutes.GET("/:id/status", jobs.JobStatusHandler(orchestrator))
			jobRoutes.DELETE("/:id", jobs.DeleteJobHandler(orchestrator))
		}

		api.GET("/download/:id", jobs.DownloadHandler(orchestrator, jobOpts))
	}
}
