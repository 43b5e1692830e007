package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/tools"
)

// Runner はキューから受け取ったジョブを実行します。
//
// ツール起因の失敗はジョブをfailedに確定してタスクとしては正常終了し、
// レコードストアへ到達できない等のインフラ起因の失敗のみエラーを返して
// Asynqの再配送に任せます。ワーカー自体は決して落としません。
type Runner struct {
	store       RecordStore
	blobs       blob.Store
	tools       *tools.Service
	logger      *log.Logger
	softTimeout time.Duration
	now         func() time.Time
}

// NewRunner は Runner を初期化します。
func NewRunner(store RecordStore, blobs blob.Store, toolService *tools.Service, softTimeout time.Duration, logger *log.Logger) (*Runner, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if blobs == nil {
		return nil, errors.New("blobs is nil")
	}
	if toolService == nil {
		return nil, errors.New("toolService is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		store:       store,
		blobs:       blobs,
		tools:       toolService,
		logger:      logger,
		softTimeout: softTimeout,
		now:         time.Now,
	}, nil
}

// ProcessTask はAsynqハンドラとしてツール実行タスクを処理します。
func (r *Runner) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}
	return r.run(ctx, &payload)
}

func (r *Runner) run(ctx context.Context, payload *TaskPayload) error {
	// レコードが無いタスクは再試行しても回復しない
	job, err := r.store.Get(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Printf("job %s not found, dropping task", payload.JobID)
			return fmt.Errorf("job %s not found: %w", payload.JobID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load job %s: %w", payload.JobID, err)
	}

	// 再配送で既に終了していたら結果には触れない
	if job.Status.IsTerminal() {
		r.logger.Printf("job %s already %s, skipping re-delivery", job.ID, job.Status)
		return nil
	}

	ok, err := r.store.MarkProcessing(ctx, job.ID, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark job %s processing: %w", job.ID, err)
	}
	if !ok {
		r.logger.Printf("job %s reached a terminal state concurrently, skipping", job.ID)
		return nil
	}

	if r.softTimeout > 0 {
		timer := time.AfterFunc(r.softTimeout, func() {
			r.logger.Printf("job %s exceeded soft time limit (%s)", job.ID, r.softTimeout)
		})
		defer timer.Stop()
	}

	ws, err := tools.NewWorkspace(job.ID)
	if err != nil {
		r.logger.Printf("failed to create workspace job=%s: %v", job.ID, err)
		return r.failJob(ctx, job.ID, "作業領域の確保に失敗しました。")
	}
	// 作業領域はどの経路でも必ず削除する
	defer func() {
		if err := ws.Cleanup(); err != nil {
			r.logger.Printf("failed to clean workspace job=%s: %v", job.ID, err)
		}
	}()

	refs := payload.InputRefs
	if len(refs) == 0 {
		refs = job.InputRefs
	}
	for _, ref := range refs {
		if err := r.stageInput(ctx, ws, ref); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("job %s aborted while fetching inputs: %w", job.ID, ctx.Err())
			}
			r.logger.Printf("failed to fetch input job=%s ref=%s: %v", job.ID, ref, err)
			return r.failJob(ctx, job.ID, fmt.Sprintf("入力ファイルの取得に失敗しました (key: %s)", ref))
		}
	}

	output, err := r.tools.Run(ctx, ws, job.Tool, job.Quality)
	if err != nil {
		// ハードタイムアウト時は書き込めないため、停滞ジョブの回収に任せる
		if ctx.Err() != nil {
			return fmt.Errorf("job %s aborted: %w", job.ID, ctx.Err())
		}
		return r.failJobWithError(ctx, job.ID, err)
	}

	resultRef, resultSize, err := r.storeOutputs(ctx, job.ID, output)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("job %s aborted while storing results: %w", job.ID, ctx.Err())
		}
		r.logger.Printf("failed to store result job=%s: %v", job.ID, err)
		return r.failJob(ctx, job.ID, "成果物の保存に失敗しました。")
	}

	if err := r.store.MarkCompleted(ctx, job.ID, resultRef, ws.TotalInputSize(), resultSize, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", job.ID, err)
	}

	// 入力の後始末はベストエフォート。完了済みの状態は巻き戻さない
	if err := r.blobs.DeleteMany(ctx, refs); err != nil {
		r.logger.Printf("failed to delete input blobs job=%s: %v", job.ID, err)
	}

	r.logger.Printf("job %s completed (tool=%s inputs=%d result=%s)", job.ID, job.Tool, len(refs), resultRef)
	return nil
}

func (r *Runner) stageInput(ctx context.Context, ws *tools.Workspace, ref string) error {
	rc, err := r.blobs.Get(ctx, ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err := ws.StageInput(path.Base(ref), rc); err != nil {
		return err
	}
	return nil
}

// storeOutputs は成果物を results/{jobID}/{name} キーで保存します。
// 先頭の成果物が正準の結果参照になります。
func (r *Runner) storeOutputs(ctx context.Context, jobID string, output *tools.Output) (string, int64, error) {
	if output == nil || len(output.Files) == 0 {
		return "", 0, errors.New("tool produced no output")
	}

	var (
		primaryRef string
		totalSize  int64
	)
	for i, f := range output.Files {
		ref := path.Join("results", jobID, f.Name)
		file, err := os.Open(f.Path)
		if err != nil {
			return "", 0, fmt.Errorf("failed to open output %s: %w", f.Name, err)
		}
		err = r.blobs.Put(ctx, ref, f.ContentType, file, f.Size)
		file.Close()
		if err != nil {
			return "", 0, fmt.Errorf("failed to upload output %s: %w", f.Name, err)
		}

		if i == 0 {
			primaryRef = ref
		}
		totalSize += f.Size
	}
	return primaryRef, totalSize, nil
}

func (r *Runner) failJob(ctx context.Context, jobID, detail string) error {
	if err := r.store.MarkFailed(ctx, jobID, detail, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}
	return nil
}

func (r *Runner) failJobWithError(ctx context.Context, jobID string, err error) error {
	var terr *tools.Error
	if errors.As(err, &terr) {
		return r.failJob(ctx, jobID, terr.Message)
	}
	return r.failJob(ctx, jobID, err.Error())
}
