// Package upload はブラウザからオブジェクトストレージへ直接アップロードするための
// 署名付きURL発行と、アップロード結果の確認・破棄を提供します。
package upload

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/session"
)

// allowedContentTypes は署名付きURLを発行できるファイル種別です。
// 処理パイプラインが扱えない種別（HEICなど）はここで弾きます。
var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/webp":      {},
}

var unsafeNameChars = regexp.MustCompile(`[^\w\-.]`)

// HandlerOptions はアップロード系ハンドラーの設定です。
type HandlerOptions struct {
	MaxFileSize   int64
	PresignExpiry time.Duration
	Bucket        string
	Region        string
}

type presignRequest struct {
	FileName string `json:"fileName" binding:"required"`
	FileType string `json:"fileType" binding:"required"`
	FileSize int64  `json:"fileSize" binding:"required"`
}

type fileKeyRequest struct {
	FileKey string `json:"fileKey" binding:"required"`
}

// PresignHandler は POST /api/v1/upload/presigned-url のハンドラーを返します。
// キーは uploads/{所有者トークン}/{UUID}-{サニタイズ済みファイル名} の形式で発行します。
func PresignHandler(store blob.Store, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req presignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "fileName・fileType・fileSize を JSON で送ってください。",
			})
			return
		}

		if opts.MaxFileSize > 0 && req.FileSize > opts.MaxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": fmt.Sprintf("ファイルサイズが上限を超えています (received: %d, max: %d)。", req.FileSize, opts.MaxFileSize),
			})
			return
		}

		if _, ok := allowedContentTypes[req.FileType]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": fmt.Sprintf("対応していないファイル形式です (received: %s)。", req.FileType),
			})
			return
		}

		owner := session.OwnerToken(c)
		if owner == "" {
			owner = "anonymous"
		}
		ref := fmt.Sprintf("uploads/%s/%s-%s", owner, uuid.NewString(), sanitizeFileName(req.FileName))

		expiry := opts.PresignExpiry
		if expiry <= 0 {
			expiry = time.Hour
		}

		url, err := store.PresignUpload(c.Request.Context(), ref, req.FileType, expiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "STORAGE_FAILED",
				"message": "アップロードURLの発行に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"uploadUrl":   url,
			"fileKey":     ref,
			"bucket":      opts.Bucket,
			"region":      opts.Region,
			"expiresIn":   int(expiry.Seconds()),
			"maxFileSize": opts.MaxFileSize,
		})
	}
}

// ConfirmHandler は POST /api/v1/upload/confirm-upload のハンドラーを返します。
// 署名付きURLでのアップロード完了後に、実体の存在とサイズを確認します。
func ConfirmHandler(store blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req fileKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "fileKey を JSON で送ってください。",
			})
			return
		}

		info, err := store.Stat(c.Request.Context(), req.FileKey)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "UPLOAD_NOT_FOUND",
					"message": "アップロードされたファイルが見つかりません。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "STORAGE_FAILED",
				"message": "アップロードの確認に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       "confirmed",
			"fileKey":      info.Ref,
			"fileSize":     info.Size,
			"lastModified": info.LastModified,
		})
	}
}

// CleanupHandler は DELETE /api/v1/upload/cleanup-upload のハンドラーを返します。
// uploads/ 配下のキーのみ削除を受け付けます。
func CleanupHandler(store blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req fileKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "fileKey を JSON で送ってください。",
			})
			return
		}

		if !strings.HasPrefix(req.FileKey, "uploads/") {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロード領域のキーのみ削除できます。",
			})
			return
		}

		if err := store.Delete(c.Request.Context(), req.FileKey); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "STORAGE_FAILED",
				"message": "ファイルの削除に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "deleted",
			"fileKey": req.FileKey,
			"message": "ファイルを削除しました。",
		})
	}
}

// StatusHandler は GET /api/v1/upload/upload-status のハンドラーを返します。
// キーはスラッシュを含むため、クエリパラメータ key で受け取ります。
func StatusHandler(store blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Query("key")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "key クエリパラメータを指定してください。",
			})
			return
		}

		info, err := store.Stat(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				c.JSON(http.StatusOK, gin.H{
					"status":  "not_found",
					"fileKey": key,
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "STORAGE_FAILED",
				"message": "アップロード状態の取得に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       "uploaded",
			"fileKey":      info.Ref,
			"fileSize":     info.Size,
			"lastModified": info.LastModified,
		})
	}
}

// sanitizeFileName は英数字・ハイフン・ドット・アンダースコア以外を取り除きます。
func sanitizeFileName(name string) string {
	safe := unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "")
	if safe == "" {
		return "file"
	}
	return safe
}
