package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

const convertedFilename = "converted.pdf"

// runConvert は取り込み済み画像を取り込み順で1ページ1枚のPDFへ変換します。
func (s *Service) runConvert(ctx context.Context, ws *Workspace) (*Output, error) {
	staged := ws.Staged()
	if len(staged) == 0 {
		return nil, newError("INVALID_INPUT", "PDFへ変換する画像ファイルがありません。", nil)
	}

	imgPaths := make([]string, 0, len(staged))
	for _, f := range staged {
		if _, err := ensureImage(f); err != nil {
			return nil, err
		}
		imgPaths = append(imgPaths, f.Path)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputPath := filepath.Join(ws.OutDir, convertedFilename)
	if err := pdfapi.ImportImagesFile(imgPaths, outputPath, nil, nil); err != nil {
		return nil, newError("UNSUPPORTED_IMAGE", "画像からPDFへの変換に失敗しました。", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("変換後ファイルの確認に失敗しました: %w", err)
	}

	return &Output{Files: []OutputFile{{
		Path:        outputPath,
		Name:        convertedFilename,
		Size:        info.Size(),
		ContentType: "application/pdf",
	}}}, nil
}
