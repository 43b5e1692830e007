package jobs

import (
	"time"

	"github.com/yourusername/file-forge/internal/tools"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal は完了・失敗いずれかの終了状態かどうかを返します。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job はジョブレコードを表します。
// ResultRef は completed のときのみ、ErrorDetail は failed のときのみ値を持ちます。
type Job struct {
	ID           string         `json:"jobId"`
	OwnerToken   string         `json:"-"`
	Tool         tools.ToolType `json:"toolType"`
	Status       Status         `json:"status"`
	InputRefs    []string       `json:"inputRefs"`
	Quality      tools.Quality  `json:"quality,omitempty"`
	ResultRef    string         `json:"resultRef,omitempty"`
	ErrorDetail  string         `json:"errorDetail,omitempty"`
	FileCount    int            `json:"fileCount"`
	OriginalSize int64          `json:"originalSize"`
	ResultSize   int64          `json:"resultSize"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}

// TaskPayload はツール実行タスクのペイロードです。
// ファイル本体は含めず、必ずオブジェクトストレージのキーで受け渡します。
type TaskPayload struct {
	JobID     string         `json:"jobId"`
	Tool      tools.ToolType `json:"toolType"`
	InputRefs []string       `json:"inputRefs"`
	Quality   tools.Quality  `json:"quality,omitempty"`
}

// タスク種別。ツールごとに専用のキューを持ちます。
const (
	taskTypeMerge    = "job:merge"
	taskTypeCompress = "job:compress"
	taskTypeReduce   = "job:reduce"
	taskTypeConvert  = "job:convert"

	taskTypeJobSweep    = "retention:jobs"
	taskTypeUploadSweep = "retention:uploads"

	maintenanceQueue = "maintenance"
)

func taskTypeFor(tool tools.ToolType) string {
	switch tool {
	case tools.ToolMerge:
		return taskTypeMerge
	case tools.ToolCompress:
		return taskTypeCompress
	case tools.ToolReduce:
		return taskTypeReduce
	case tools.ToolConvert:
		return taskTypeConvert
	default:
		return ""
	}
}

func queueFor(tool tools.ToolType) string {
	return string(tool)
}
