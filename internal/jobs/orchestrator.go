package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/tools"
)

// RecordStore はジョブレコードへの永続化操作です。*Store が実装します。
type RecordStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	ListByOwner(ctx context.Context, ownerToken string, limit int) ([]*Job, error)
	MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id, resultRef string, originalSize, resultSize int64, now time.Time) error
	MarkFailed(ctx context.Context, id, detail string, now time.Time) error
	Delete(ctx context.Context, id string) error
	ListExpiredCompleted(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error)
	ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error)
}

// TaskEnqueuer はジョブ実行タスクの投入先です。*Queue が実装します。
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, payload *TaskPayload) (string, error)
}

// 一覧取得の上限件数。
const maxListLimit = 50

// Orchestrator はジョブの受付・照会・削除を担います。
// 投入時の検証をすべて済ませ、キューへはジョブIDとキーだけを渡します。
type Orchestrator struct {
	store         RecordStore
	blobs         blob.Store
	queue         TaskEnqueuer
	logger        *log.Logger
	maxInputFiles int
	now           func() time.Time
}

// NewOrchestrator は Orchestrator を初期化します。
func NewOrchestrator(store RecordStore, blobs blob.Store, queue TaskEnqueuer, maxInputFiles int, logger *log.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if blobs == nil {
		return nil, errors.New("blobs is nil")
	}
	if queue == nil {
		return nil, errors.New("queue is nil")
	}
	if maxInputFiles <= 0 {
		maxInputFiles = 20
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		store:         store,
		blobs:         blobs,
		queue:         queue,
		logger:        logger,
		maxInputFiles: maxInputFiles,
		now:           time.Now,
	}, nil
}

// SubmitRequest はジョブ投入のリクエストです。
type SubmitRequest struct {
	OwnerToken string
	ToolType   string
	InputRefs  []string
	Quality    string
}

// Submit はリクエストを検証し、pending状態のジョブを保存してタスクを1件投入します。
// 処理の完了は待ちません。
func (o *Orchestrator) Submit(ctx context.Context, req *SubmitRequest) (*Job, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if strings.TrimSpace(req.OwnerToken) == "" {
		return nil, newError("INVALID_INPUT", "セッションが特定できません。", nil)
	}

	tool, err := tools.ParseToolType(req.ToolType)
	if err != nil {
		return nil, err
	}
	quality, err := tools.NormalizeQuality(tool, tools.Quality(req.Quality))
	if err != nil {
		return nil, err
	}
	refs, err := normalizeRefs(req.InputRefs, o.maxInputFiles)
	if err != nil {
		return nil, err
	}
	if tools.RequiresSingleInput(tool) && len(refs) != 1 {
		return nil, newError("INVALID_INPUT", "サイズ削減はファイルを1つだけ指定してください。", nil)
	}

	for _, ref := range refs {
		ok, err := o.blobs.Exists(ctx, ref)
		if err != nil {
			return nil, newError("STORAGE_FAILED", "アップロード済みファイルの確認に失敗しました。", err)
		}
		if !ok {
			return nil, newError("INVALID_INPUT", fmt.Sprintf("アップロード済みファイルが見つかりません (key: %s)", ref), nil)
		}
	}

	now := o.now().UTC()
	job := &Job{
		ID:         uuid.NewString(),
		OwnerToken: req.OwnerToken,
		Tool:       tool,
		Status:     StatusPending,
		InputRefs:  refs,
		Quality:    quality,
		FileCount:  len(refs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.Create(ctx, job); err != nil {
		return nil, newError("INTERNAL_ERROR", "ジョブの作成に失敗しました。", err)
	}

	payload := &TaskPayload{JobID: job.ID, Tool: tool, InputRefs: refs, Quality: quality}
	if _, err := o.queue.Enqueue(ctx, payload); err != nil {
		// 投入できなかったpendingレコードは残さない
		if delErr := o.store.Delete(ctx, job.ID); delErr != nil {
			o.logger.Printf("failed to delete job %s after enqueue failure: %v", job.ID, delErr)
		}
		return nil, newError("INTERNAL_ERROR", "ジョブの投入に失敗しました。", err)
	}

	return job, nil
}

// GetStatus はジョブの現在状態を返します。
// ジョブIDは推測不可能なUUIDのため、所有者チェックは行いません。
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*Job, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError("JOB_NOT_FOUND", "指定されたジョブが見つかりません。", nil)
		}
		return nil, newError("INTERNAL_ERROR", "ジョブの取得に失敗しました。", err)
	}
	return job, nil
}

// ListForOwner は所有者のジョブを新しい順に返します。件数は最大50件です。
func (o *Orchestrator) ListForOwner(ctx context.Context, ownerToken string, limit int) ([]*Job, error) {
	if strings.TrimSpace(ownerToken) == "" {
		return nil, newError("INVALID_INPUT", "セッションが特定できません。", nil)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	result, err := o.store.ListByOwner(ctx, ownerToken, limit)
	if err != nil {
		return nil, newError("INTERNAL_ERROR", "ジョブ一覧の取得に失敗しました。", err)
	}
	return result, nil
}

// Delete はジョブを削除します。削除できるのは所有者だけです。
// 成果物の削除はベストエフォートで、失敗してもレコードは削除します。
func (o *Orchestrator) Delete(ctx context.Context, id, ownerToken string) error {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError("JOB_NOT_FOUND", "指定されたジョブが見つかりません。", nil)
		}
		return newError("INTERNAL_ERROR", "ジョブの取得に失敗しました。", err)
	}
	if job.OwnerToken != ownerToken {
		return newError("FORBIDDEN", "このジョブを削除する権限がありません。", nil)
	}

	if job.ResultRef != "" {
		if err := o.blobs.Delete(ctx, job.ResultRef); err != nil {
			o.logger.Printf("failed to delete result blob job=%s ref=%s: %v", job.ID, job.ResultRef, err)
		}
	}

	if err := o.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError("JOB_NOT_FOUND", "指定されたジョブが見つかりません。", nil)
		}
		return newError("INTERNAL_ERROR", "ジョブの削除に失敗しました。", err)
	}
	return nil
}

// IssueDownloadURL は完了ジョブの成果物へ署名付きダウンロードURLを発行します。
func (o *Orchestrator) IssueDownloadURL(ctx context.Context, id string, expires time.Duration) (string, string, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", "", newError("JOB_NOT_FOUND", "指定されたジョブが見つかりません。", nil)
		}
		return "", "", newError("INTERNAL_ERROR", "ジョブの取得に失敗しました。", err)
	}
	if job.Status != StatusCompleted || job.ResultRef == "" {
		return "", "", newError("INVALID_INPUT", "ジョブはまだ完了していません。", nil)
	}

	fileName := path.Base(job.ResultRef)
	u, err := o.blobs.PresignDownload(ctx, job.ResultRef, fileName, expires)
	if err != nil {
		return "", "", newError("STORAGE_FAILED", "ダウンロードURLの発行に失敗しました。", err)
	}
	return u, fileName, nil
}

// normalizeRefs は入力キーの空白除去と件数チェックを行います。
func normalizeRefs(refs []string, maxFiles int) ([]string, error) {
	if len(refs) == 0 {
		return nil, newError("INVALID_INPUT", "入力ファイルを1つ以上指定してください。", nil)
	}
	if len(refs) > maxFiles {
		return nil, newError("INVALID_INPUT", fmt.Sprintf("入力ファイルは最大%d件までです。", maxFiles), nil)
	}

	normalized := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, newError("INVALID_INPUT", "空のファイルキーが含まれています。", nil)
		}
		normalized = append(normalized, ref)
	}
	return normalized, nil
}
