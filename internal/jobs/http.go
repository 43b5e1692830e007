package jobs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/file-forge/internal/session"
)

// JobService はジョブの受付・照会・削除・ダウンロードURL発行を提供します。
type JobService interface {
	Submit(ctx context.Context, req *SubmitRequest) (*Job, error)
	GetStatus(ctx context.Context, id string) (*Job, error)
	ListForOwner(ctx context.Context, ownerToken string, limit int) ([]*Job, error)
	Delete(ctx context.Context, id, ownerToken string) error
	IssueDownloadURL(ctx context.Context, id string, expires time.Duration) (string, string, error)
}

// SubmitLimiter はツール種別ごとの投入回数制限を実装します。
type SubmitLimiter interface {
	Allow(ctx context.Context, tool string) (bool, error)
}

// HandlerOptions はジョブ系ハンドラーの設定です。
type HandlerOptions struct {
	Limiter        SubmitLimiter
	DownloadExpiry time.Duration
}

type startJobRequest struct {
	ToolType string   `json:"toolType" binding:"required"`
	FileKeys []string `json:"fileKeys" binding:"required"`
	Quality  string   `json:"quality"`
}

// StartJobHandler は POST /api/v1/jobs/start のハンドラーを返します。
func StartJobHandler(svc JobService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "toolType と fileKeys を JSON で送ってください。",
			})
			return
		}

		if opts.Limiter != nil {
			ok, err := opts.Limiter.Allow(c.Request.Context(), req.ToolType)
			if err == nil && !ok {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"code":    "RATE_LIMITED",
					"message": "リクエスト回数の上限に達しました。しばらく待ってから再度お試しください。",
				})
				return
			}
			// 制限ストアに届かないときは受け付けを止めない。
		}

		job, err := svc.Submit(c.Request.Context(), &SubmitRequest{
			OwnerToken: session.OwnerToken(c),
			ToolType:   req.ToolType,
			InputRefs:  req.FileKeys,
			Quality:    req.Quality,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":   job.ID,
			"status":  job.Status,
			"message": "ジョブを受け付けました。",
		})
	}
}

// JobStatusHandler は GET /api/v1/jobs/:id/status のハンドラーを返します。
func JobStatusHandler(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := svc.GetStatus(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// MyJobsHandler は GET /api/v1/jobs/my-jobs のハンドラーを返します。
func MyJobsHandler(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListForOwner(c.Request.Context(), session.OwnerToken(c), maxListLimit)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if list == nil {
			list = []*Job{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// DeleteJobHandler は DELETE /api/v1/jobs/:id のハンドラーを返します。
func DeleteJobHandler(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.Delete(c.Request.Context(), id, session.OwnerToken(c)); err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "deleted",
			"jobId":   id,
			"message": "ジョブを削除しました。",
		})
	}
}

// DownloadHandler は GET /api/v1/download/:id のハンドラーを返します。
// 完了済みジョブの成果物に対する署名付きダウンロードURLを発行します。
func DownloadHandler(svc JobService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		expiry := opts.DownloadExpiry
		if expiry <= 0 {
			expiry = time.Hour
		}

		url, fileName, err := svc.IssueDownloadURL(c.Request.Context(), c.Param("id"), expiry)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"downloadUrl": url,
			"expiresIn":   int(expiry.Seconds()),
			"fileName":    fileName,
		})
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case "INVALID_INPUT":
			status = http.StatusBadRequest
		case "JOB_NOT_FOUND":
			status = http.StatusNotFound
		case "FORBIDDEN":
			status = http.StatusForbidden
		case "RATE_LIMITED":
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
