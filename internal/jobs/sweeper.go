package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/config"
)

// 1回の掃除で処理する最大件数。
const sweepBatchSize = 500

// Sweeper は保持期間を過ぎたジョブと未使用アップロードを定期的に掃除します。
type Sweeper struct {
	store           RecordStore
	blobs           blob.Store
	logger          *log.Logger
	jobRetention    time.Duration
	uploadRetention time.Duration
	stuckAfter      time.Duration
	now             func() time.Time
}

// NewSweeper は Sweeper を初期化します。
func NewSweeper(store RecordStore, blobs blob.Store, cfg *config.Config, logger *log.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if blobs == nil {
		return nil, errors.New("blobs is nil")
	}
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{
		store:           store,
		blobs:           blobs,
		logger:          logger,
		jobRetention:    time.Duration(cfg.JobRetentionHours) * time.Hour,
		uploadRetention: time.Duration(cfg.UploadRetentionMinutes) * time.Minute,
		stuckAfter:      time.Duration(cfg.TaskTimeoutMinutes+cfg.StuckJobGraceMinutes) * time.Minute,
		now:             time.Now,
	}, nil
}

// HandleJobSweep は保持期限切れジョブの削除と停滞ジョブの失敗確定を行います。
func (s *Sweeper) HandleJobSweep(ctx context.Context, _ *asynq.Task) error {
	now := s.now().UTC()
	if err := s.sweepExpired(ctx, now); err != nil {
		return err
	}
	return s.reconcileStuck(ctx, now)
}

func (s *Sweeper) sweepExpired(ctx context.Context, now time.Time) error {
	expired, err := s.store.ListExpiredCompleted(ctx, now.Add(-s.jobRetention), sweepBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list expired jobs: %w", err)
	}

	removed := 0
	for _, job := range expired {
		// 成果物の削除はベストエフォート。失敗してもレコードは削除する
		if job.ResultRef != "" {
			if err := s.blobs.Delete(ctx, job.ResultRef); err != nil {
				s.logger.Printf("failed to delete result blob job=%s ref=%s: %v", job.ID, job.ResultRef, err)
			}
		}
		if err := s.store.Delete(ctx, job.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Printf("failed to delete expired job %s: %v", job.ID, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Printf("removed %d expired jobs", removed)
	}
	return nil
}

// reconcileStuck はハードタイムアウトを超えて停滞しているprocessingジョブを
// failedへ確定します。ワーカーごと落ちたジョブはここで回収されます。
func (s *Sweeper) reconcileStuck(ctx context.Context, now time.Time) error {
	stuck, err := s.store.ListStuckProcessing(ctx, now.Add(-s.stuckAfter), sweepBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list stuck jobs: %w", err)
	}

	for _, job := range stuck {
		if err := s.store.MarkFailed(ctx, job.ID, "処理がタイムアウトしました。", now); err != nil {
			s.logger.Printf("failed to mark stuck job %s failed: %v", job.ID, err)
			continue
		}
		s.logger.Printf("marked stuck job %s as failed (no update since %s)", job.ID, job.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// HandleUploadSweep は保持期間を過ぎた未使用アップロードを削除します。
func (s *Sweeper) HandleUploadSweep(ctx context.Context, _ *asynq.Task) error {
	cutoff := s.now().UTC().Add(-s.uploadRetention)

	infos, err := s.blobs.List(ctx, "uploads/")
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}

	var refs []string
	for _, info := range infos {
		if info.LastModified.Before(cutoff) {
			refs = append(refs, info.Ref)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	if err := s.blobs.DeleteMany(ctx, refs); err != nil {
		s.logger.Printf("failed to delete stale uploads: %v", err)
		return nil
	}
	s.logger.Printf("removed %d stale uploads", len(refs))
	return nil
}
