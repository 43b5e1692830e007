package tools

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	// image.Decode が扱える形式を登録する
	_ "golang.org/x/image/webp"
)

// runCompress は取り込み済み画像を品質レベルに応じて再エンコードします。
// 入力1つにつき成果物を1つ生成し、先頭が正準の成果物になります。
func (s *Service) runCompress(ctx context.Context, ws *Workspace, quality Quality) (*Output, error) {
	staged := ws.Staged()
	if len(staged) == 0 {
		return nil, newError("INVALID_INPUT", "圧縮する画像ファイルがありません。", nil)
	}

	setting := settingFor(quality)
	outs := make([]OutputFile, 0, len(staged))

	for i, f := range staged {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		out, err := compressImage(ws, i+1, f, setting)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}

	return &Output{Files: outs}, nil
}

// compressImage は1枚の画像を再エンコードします。
// JPEG/WebP はJPEGとして品質値で再エンコードし、PNGは可逆のまま最高圧縮で書き直します。
func compressImage(ws *Workspace, index int, f StagedFile, setting qualitySetting) (OutputFile, error) {
	detected, err := ensureImage(f)
	if err != nil {
		return OutputFile{}, err
	}

	src, err := os.Open(f.Path)
	if err != nil {
		return OutputFile{}, fmt.Errorf("入力画像のオープンに失敗しました: %w", err)
	}
	img, _, err := image.Decode(src)
	src.Close()
	if err != nil {
		return OutputFile{}, newError("UNSUPPORTED_IMAGE", fmt.Sprintf("%s のデコードに失敗しました。", f.Name), err)
	}

	var (
		name        string
		contentType string
	)
	if detected == "image/png" {
		name = fmt.Sprintf("compressed-%02d.png", index)
		contentType = "image/png"
	} else {
		name = fmt.Sprintf("compressed-%02d.jpg", index)
		contentType = "image/jpeg"
	}

	outputPath := filepath.Join(ws.OutDir, name)
	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return OutputFile{}, fmt.Errorf("出力画像の作成に失敗しました: %w", err)
	}

	if detected == "image/png" {
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if setting.Optimize {
			encoder.CompressionLevel = png.BestCompression
		}
		err = encoder.Encode(out, img)
	} else {
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: setting.JPEGQuality})
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return OutputFile{}, fmt.Errorf("画像の再エンコードに失敗しました: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return OutputFile{}, fmt.Errorf("出力画像の確認に失敗しました: %w", err)
	}

	return OutputFile{Path: outputPath, Name: name, Size: info.Size(), ContentType: contentType}, nil
}
