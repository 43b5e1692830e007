package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/file-forge/internal/config"
)

// Queue はAsynqクライアントを包み、ツール別レーンへタスクを投入します。
type Queue struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

// NewQueue は Queue を作成します。
func NewQueue(cfg *config.Config) (*Queue, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return &Queue{
		client:   asynq.NewClient(opt),
		maxRetry: cfg.TaskMaxRetry,
		timeout:  time.Duration(cfg.TaskTimeoutMinutes) * time.Minute,
	}, nil
}

// Enqueue はツール実行タスクを1件投入し、タスクIDを返します。
func (q *Queue) Enqueue(ctx context.Context, payload *TaskPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("payload.JobID is required")
	}
	typename := taskTypeFor(payload.Tool)
	if typename == "" {
		return "", fmt.Errorf("unknown tool type: %s", payload.Tool)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(typename, body, asynq.Queue(queueFor(payload.Tool)))
	info, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(q.maxRetry), asynq.Timeout(q.timeout))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Close はクライアント接続を閉じます。
func (q *Queue) Close() error {
	return q.client.Close()
}
