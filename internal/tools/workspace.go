package tools

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StagedFile はワークスペースへ取り込み済みの入力ファイルです。
type StagedFile struct {
	Path string // ワークスペース内の絶対パス
	Name string // 元のファイル名
	Size int64
}

// Workspace は1ジョブ分のディスク上の作業領域です。
// 入力はInDirへ連番付きで取り込み、成果物はOutDirへ書き出します。
type Workspace struct {
	JobID  string
	Dir    string
	InDir  string
	OutDir string

	staged []StagedFile
}

// NewWorkspace は一時領域配下にジョブ用の作業ディレクトリを作成します。
func NewWorkspace(jobID string) (*Workspace, error) {
	if jobID == "" {
		return nil, errors.New("jobID is empty")
	}

	dir := filepath.Join(os.TempDir(), "file-forge", jobID)
	inDir := filepath.Join(dir, "in")
	outDir := filepath.Join(dir, "out")
	for _, d := range []string{dir, inDir, outDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
		}
	}

	return &Workspace{JobID: jobID, Dir: dir, InDir: inDir, OutDir: outDir}, nil
}

// StageInput は入力ストリームをワークスペースへ書き込みます。
// 取り込み順を保持するため、ファイル名に連番を付けます。
func (w *Workspace) StageInput(name string, r io.Reader) (StagedFile, error) {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		base = "input"
	}
	path := filepath.Join(w.InDir, fmt.Sprintf("%03d-%s", len(w.staged)+1, base))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return StagedFile{}, fmt.Errorf("入力ファイルの作成に失敗しました: %w", err)
	}

	size, err := io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return StagedFile{}, fmt.Errorf("入力ファイルの書き込みに失敗しました: %w", err)
	}

	staged := StagedFile{Path: path, Name: base, Size: size}
	w.staged = append(w.staged, staged)
	return staged, nil
}

// Staged は取り込み済みの入力ファイルを取り込み順で返します。
func (w *Workspace) Staged() []StagedFile {
	return w.staged
}

// TotalInputSize は取り込み済み入力の合計サイズを返します。
func (w *Workspace) TotalInputSize() int64 {
	var total int64
	for _, f := range w.staged {
		total += f.Size
	}
	return total
}

// Cleanup は作業ディレクトリごと削除します。
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}
