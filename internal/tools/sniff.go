package tools

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// 画像系ツールが受け付ける形式。HEICはデコーダが無いため対象外です。
var supportedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

func ensurePDF(f StagedFile) error {
	mtype, err := mimetype.DetectFile(f.Path)
	if err != nil {
		return fmt.Errorf("入力ファイルの形式判定に失敗しました: %w", err)
	}
	if !mtype.Is("application/pdf") {
		return newError("UNSUPPORTED_PDF", fmt.Sprintf("%s はPDFファイルではありません (detected: %s)", f.Name, mtype.String()), nil)
	}
	return nil
}

func ensureImage(f StagedFile) (string, error) {
	mtype, err := mimetype.DetectFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("入力ファイルの形式判定に失敗しました: %w", err)
	}
	for _, t := range supportedImageTypes {
		if mtype.Is(t) {
			return t, nil
		}
	}
	return "", newError("UNSUPPORTED_IMAGE", fmt.Sprintf("%s は対応していない画像形式です (detected: %s)", f.Name, mtype.String()), nil)
}
