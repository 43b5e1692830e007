package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/file-forge/internal/config"
)

// OutputFile はツールが生成した1つの成果物ファイルです。
type OutputFile struct {
	Path        string // ワークスペース内の絶対パス
	Name        string // 保存時のファイル名
	Size        int64
	ContentType string
}

// Output はツール実行の結果です。Filesの先頭が正準の成果物になります。
type Output struct {
	Files []OutputFile
}

// Primary は正準の成果物を返します。
func (o *Output) Primary() OutputFile {
	if o == nil || len(o.Files) == 0 {
		return OutputFile{}
	}
	return o.Files[0]
}

// Service はツール実行を担当します。
type Service struct {
	cfg *config.Config
}

// NewService はツール実行サービスを作成します。
func NewService(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return &Service{cfg: cfg}, nil
}

// Run は指定ツールをワークスペース上の入力に対して実行します。
// 入力は事前に Workspace.StageInput で取り込んでおく必要があります。
func (s *Service) Run(ctx context.Context, ws *Workspace, tool ToolType, quality Quality) (*Output, error) {
	if ws == nil {
		return nil, errors.New("workspace is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch tool {
	case ToolMerge:
		return s.runMerge(ctx, ws)
	case ToolCompress:
		return s.runCompress(ctx, ws, quality)
	case ToolReduce:
		return s.runReduce(ctx, ws, quality)
	case ToolConvert:
		return s.runConvert(ctx, ws)
	default:
		return nil, newError("INVALID_INPUT", fmt.Sprintf("未対応のツールです (received: %s)", tool), nil)
	}
}
