package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

const mergedFilename = "merged.pdf"

// runMerge は取り込み済みPDFを取り込み順で1つに結合します。
func (s *Service) runMerge(ctx context.Context, ws *Workspace) (*Output, error) {
	staged := ws.Staged()
	if len(staged) == 0 {
		return nil, newError("INVALID_INPUT", "結合するPDFファイルがありません。", nil)
	}

	inPaths := make([]string, 0, len(staged))
	for _, f := range staged {
		if err := ensurePDF(f); err != nil {
			return nil, err
		}
		inPaths = append(inPaths, f.Path)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputPath := filepath.Join(ws.OutDir, mergedFilename)
	if err := pdfapi.MergeCreateFile(inPaths, outputPath, false, nil); err != nil {
		return nil, newError("UNSUPPORTED_PDF", "PDFの結合に失敗しました。", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("結合後ファイルの確認に失敗しました: %w", err)
	}

	return &Output{Files: []OutputFile{{
		Path:        outputPath,
		Name:        mergedFilename,
		Size:        info.Size(),
		ContentType: "application/pdf",
	}}}, nil
}
