package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourusername/file-forge/internal/tools"
)

// ErrNotFound は対象ジョブが存在しない場合に返されます。
var ErrNotFound = errors.New("jobs: record not found")

// Store はPostgres上のジョブレコードを管理します。
// 状態遷移は条件付きUPDATEで行い、アプリケーション側のロックは持ちません。
type Store struct {
	pool *pgxpool.Pool
}

// NewStore は Store を作成します。
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	return &Store{pool: pool}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id            TEXT PRIMARY KEY,
		owner_token   TEXT NOT NULL,
		tool_type     TEXT NOT NULL,
		status        TEXT NOT NULL,
		input_refs    JSONB NOT NULL,
		quality       TEXT NOT NULL DEFAULT '',
		result_ref    TEXT NOT NULL DEFAULT '',
		error_detail  TEXT NOT NULL DEFAULT '',
		file_count    INTEGER NOT NULL DEFAULT 0,
		original_size BIGINT NOT NULL DEFAULT 0,
		result_size   BIGINT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_owner_created ON jobs (owner_token, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs (status, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_completed_at ON jobs (completed_at)`,
}

// Init はスキーマを作成します。起動時に一度呼び出してください。
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare jobs schema: %w", err)
		}
	}
	return nil
}

const jobColumns = `id, owner_token, tool_type, status, input_refs, quality, result_ref, error_detail,
	file_count, original_size, result_size, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job     Job
		tool    string
		status  string
		quality string
	)
	err := row.Scan(
		&job.ID, &job.OwnerToken, &tool, &status, &job.InputRefs, &quality,
		&job.ResultRef, &job.ErrorDetail,
		&job.FileCount, &job.OriginalSize, &job.ResultSize,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Tool = tools.ToolType(tool)
	job.Status = Status(status)
	job.Quality = tools.Quality(quality)
	return &job, nil
}

func (s *Store) queryJobs(ctx context.Context, sql string, args ...any) ([]*Job, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Create は新規ジョブを保存します。
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, owner_token, tool_type, status, input_refs, quality, file_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		job.ID, job.OwnerToken, string(job.Tool), string(job.Status), job.InputRefs,
		string(job.Quality), job.FileCount, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get はジョブを取得します。存在しない場合は ErrNotFound を返します。
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

// ListByOwner は所有者のジョブを作成日時の降順で返します。
func (s *Store) ListByOwner(ctx context.Context, ownerToken string, limit int) ([]*Job, error) {
	result, err := s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE owner_token = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		ownerToken, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for owner: %w", err)
	}
	return result, nil
}

// MarkProcessing はジョブをprocessingへ遷移させます。
// 再配送に備えて既にprocessingの場合も成功として扱います。
// 終了状態のジョブは変更せず false を返します。
func (s *Store) MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = $3
		WHERE id = $1 AND status IN ($4, $2)`,
		id, string(StatusProcessing), now, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark job %s processing: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCompleted はジョブを完了状態にします。
// 結果参照とサイズ情報を設定し、エラー詳細は消去します。
// completed_at は最初に終了した時刻を保持します。
func (s *Store) MarkCompleted(ctx context.Context, id, resultRef string, originalSize, resultSize int64, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, result_ref = $3, error_detail = '',
			original_size = $4, result_size = $5,
			updated_at = $6, completed_at = COALESCE(completed_at, $6)
		WHERE id = $1`,
		id, string(StatusCompleted), resultRef, originalSize, resultSize, now,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed はジョブを失敗状態にします。
// エラー詳細を設定し、結果参照は消去します。
func (s *Store) MarkFailed(ctx context.Context, id, detail string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, error_detail = $3, result_ref = '',
			updated_at = $4, completed_at = COALESCE(completed_at, $4)
		WHERE id = $1`,
		id, string(StatusFailed), detail, now,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete はジョブレコードを削除します。
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiredCompleted は指定時刻より前に終了した保持期限切れジョブを返します。
func (s *Store) ListExpiredCompleted(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	result, err := s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE completed_at IS NOT NULL AND completed_at < $1
		ORDER BY completed_at
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired jobs: %w", err)
	}
	return result, nil
}

// ListStuckProcessing は指定時刻より前から更新のないprocessingジョブを返します。
func (s *Store) ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	result, err := s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		string(StatusProcessing), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}
	return result, nil
}
