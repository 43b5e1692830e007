package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const reducedFilename = "reduced.pdf"

// runReduce はGhostscriptで単一PDFのファイルサイズを削減します。
func (s *Service) runReduce(ctx context.Context, ws *Workspace, quality Quality) (*Output, error) {
	staged := ws.Staged()
	if len(staged) != 1 {
		return nil, newError("INVALID_INPUT", "サイズ削減はPDFファイルを1つだけ指定してください。", nil)
	}

	f := staged[0]
	if err := ensurePDF(f); err != nil {
		return nil, err
	}

	outputPath := filepath.Join(ws.OutDir, reducedFilename)
	if err := s.runGhostscript(ctx, f.Path, outputPath, settingFor(quality)); err != nil {
		return nil, err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("削減後ファイルの確認に失敗しました: %w", err)
	}

	return &Output{Files: []OutputFile{{
		Path:        outputPath,
		Name:        reducedFilename,
		Size:        info.Size(),
		ContentType: "application/pdf",
	}}}, nil
}

func (s *Service) runGhostscript(ctx context.Context, inputPath, outputPath string, setting qualitySetting) error {
	args := ghostscriptArgs(outputPath, inputPath, setting)

	cmd := exec.CommandContext(ctx, s.cfg.GhostscriptPath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return newError("UNSUPPORTED_PDF", fmt.Sprintf("Ghostscriptによるサイズ削減に失敗しました: %s", stderr.String()), err)
	}
	return nil
}

// ghostscriptArgs は品質対応表のパラメータをGhostscript引数へ展開します。
// 埋め込み画像の再エンコード品質は -dJPEGQ として渡します。
func ghostscriptArgs(outputPath, inputPath string, setting qualitySetting) []string {
	args := []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.5",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dAutoRotatePages=/None",
		fmt.Sprintf("-dJPEGQ=%d", setting.JPEGQuality),
	}
	if setting.Optimize {
		args = append(args,
			"-dDownsampleColorImages=true",
			"-dColorImageResolution=150",
			"-dDownsampleGrayImages=true",
			"-dGrayImageResolution=150",
			"-dDownsampleMonoImages=true",
			"-dMonoImageResolution=150",
		)
	}
	return append(args,
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	)
}
