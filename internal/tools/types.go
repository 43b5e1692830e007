// Package tools はアップロードされたファイルに対する処理ツール（結合・圧縮・軽量化・変換）を提供します。
package tools

import (
	"fmt"
	"strings"
)

// ToolType は実行するツールの種別を表します。
type ToolType string

const (
	// ToolMerge は複数PDFを1つに結合します。
	ToolMerge ToolType = "merge"
	// ToolCompress は画像を再エンコードして圧縮します。
	ToolCompress ToolType = "compress"
	// ToolReduce は単一PDFのファイルサイズを削減します。
	ToolReduce ToolType = "reduce"
	// ToolConvert は画像を1ページ1枚のPDFへ変換します。
	ToolConvert ToolType = "convert"
)

// ToolTypes は対応しているツール種別の一覧です。
func ToolTypes() []ToolType {
	return []ToolType{ToolMerge, ToolCompress, ToolReduce, ToolConvert}
}

// ParseToolType はツール種別文字列を検証して返します。
func ParseToolType(v string) (ToolType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(ToolMerge):
		return ToolMerge, nil
	case string(ToolCompress):
		return ToolCompress, nil
	case string(ToolReduce):
		return ToolReduce, nil
	case string(ToolConvert):
		return ToolConvert, nil
	default:
		return "", newError("INVALID_INPUT", fmt.Sprintf("toolTypeには merge / compress / reduce / convert のいずれかを指定してください (received: %s)", v), nil)
	}
}

// Quality は圧縮・軽量化の強度を表します。
type Quality string

const (
	// QualityLow は低圧縮・高画質です。
	QualityLow Quality = "low"
	// QualityMedium は標準の圧縮です。
	QualityMedium Quality = "medium"
	// QualityHigh は高圧縮・低画質です。
	QualityHigh Quality = "high"
)

// NormalizeQuality はツールに応じて品質指定を検証します。
// compress / reduce では省略時に medium を補います。
// merge / convert は品質指定を受け付けません。
func NormalizeQuality(tool ToolType, q Quality) (Quality, error) {
	switch tool {
	case ToolMerge, ToolConvert:
		if q != "" {
			return "", newError("INVALID_INPUT", fmt.Sprintf("%s では品質レベルを指定できません。", tool), nil)
		}
		return "", nil
	case ToolCompress, ToolReduce:
		switch strings.ToLower(string(q)) {
		case "":
			return QualityMedium, nil
		case string(QualityLow):
			return QualityLow, nil
		case string(QualityMedium):
			return QualityMedium, nil
		case string(QualityHigh):
			return QualityHigh, nil
		default:
			return "", newError("INVALID_INPUT", fmt.Sprintf("品質レベルには low / medium / high を指定してください (received: %s)", q), nil)
		}
	default:
		return "", newError("INVALID_INPUT", fmt.Sprintf("未対応のツールです (received: %s)", tool), nil)
	}
}

// qualitySetting は品質レベルごとの圧縮パラメータです。
type qualitySetting struct {
	JPEGQuality int  // JPEG再エンコード品質（Ghostscriptでは -dJPEGQ に渡す）
	Optimize    bool // 追加最適化（PNG最高圧縮、PDF画像ダウンサンプル）を行うか
}

// 品質レベルと圧縮パラメータの対応表。
// 画像圧縮とPDF軽量化の両方がこの表だけを参照します。
var qualitySettings = map[Quality]qualitySetting{
	QualityLow:    {JPEGQuality: 95, Optimize: true},
	QualityMedium: {JPEGQuality: 85, Optimize: true},
	QualityHigh:   {JPEGQuality: 70, Optimize: true},
}

func settingFor(q Quality) qualitySetting {
	if s, ok := qualitySettings[q]; ok {
		return s
	}
	return qualitySettings[QualityMedium]
}

// RequiresSingleInput は入力ファイルをちょうど1つだけ受け付けるツールかどうかを返します。
func RequiresSingleInput(tool ToolType) bool {
	return tool == ToolReduce
}
