// Package blob はジョブの入出力ファイルを保管するオブジェクトストレージへのアクセスを提供します。
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound は対象オブジェクトが存在しない場合に返されます。
var ErrNotFound = errors.New("blob: object not found")

// Info はオブジェクトのメタデータを表します。
type Info struct {
	Ref          string    // オブジェクトキー
	Size         int64     // サイズ（バイト）
	LastModified time.Time // 最終更新時刻
}

// Store はオブジェクトストレージの操作を定義するインターフェースです。
// 実装はS3互換ストレージ（S3Store）とテスト用のインメモリ（Memory）があります。
type Store interface {
	// Exists はオブジェクトの存在を確認します。
	Exists(ctx context.Context, ref string) (bool, error)
	// Stat はオブジェクトのメタデータを返します。存在しない場合は ErrNotFound を返します。
	Stat(ctx context.Context, ref string) (Info, error)
	// Get はオブジェクトの読み取りストリームを返します。呼び出し側でCloseしてください。
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	// Put はオブジェクトを保存します。sizeには書き込むバイト数を指定します。
	Put(ctx context.Context, ref string, contentType string, r io.Reader, size int64) error
	// Delete はオブジェクトを削除します。存在しない場合もエラーにしません。
	Delete(ctx context.Context, ref string) error
	// DeleteMany は複数オブジェクトをまとめて削除します。
	DeleteMany(ctx context.Context, refs []string) error
	// PresignUpload はアップロード用の署名付きURLを発行します。
	PresignUpload(ctx context.Context, ref string, contentType string, expires time.Duration) (string, error)
	// PresignDownload はダウンロード用の署名付きURLを発行します。
	// downloadName を指定するとContent-Dispositionでファイル名を付与します。
	PresignDownload(ctx context.Context, ref string, downloadName string, expires time.Duration) (string, error)
	// List は指定プレフィックス配下のオブジェクト一覧を返します。
	List(ctx context.Context, prefix string) ([]Info, error)
}
