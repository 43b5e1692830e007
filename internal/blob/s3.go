package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options はS3互換ストレージへの接続設定です。
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store はS3互換オブジェクトストレージ上のStore実装です。
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store はS3互換ストレージへ接続するStoreを作成します。
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("endpoint is empty")
	}
	if opts.Bucket == "" {
		return nil, errors.New("bucket is empty")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

// Exists はオブジェクトの存在を確認します。
func (s *S3Store) Exists(ctx context.Context, ref string) (bool, error) {
	_, err := s.Stat(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stat はオブジェクトのメタデータを返します。
func (s *S3Store) Stat(ctx context.Context, ref string) (Info, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, ref, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("failed to stat object %s: %w", ref, err)
	}
	return Info{Ref: ref, Size: stat.Size, LastModified: stat.LastModified}, nil
}

// Get はオブジェクトの読み取りストリームを返します。
func (s *S3Store) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", ref, err)
	}
	// GetObjectは遅延評価のため、存在確認はここで行う
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object %s: %w", ref, err)
	}
	return obj, nil
}

// Put はオブジェクトを保存します。
func (s *S3Store) Put(ctx context.Context, ref string, contentType string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, ref, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", ref, err)
	}
	return nil
}

// Delete はオブジェクトを削除します。
func (s *S3Store) Delete(ctx context.Context, ref string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", ref, err)
	}
	return nil
}

// DeleteMany は複数オブジェクトをまとめて削除します。
func (s *S3Store) DeleteMany(ctx context.Context, refs []string) error {
	if len(refs) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(refs))
	for _, ref := range refs {
		objectsCh <- minio.ObjectInfo{Key: ref}
	}
	close(objectsCh)

	var failed []string
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			failed = append(failed, rerr.ObjectName)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete %d of %d objects (first: %s)", len(failed), len(refs), failed[0])
	}
	return nil
}

// PresignUpload はPUT用の署名付きURLを発行します。Content-Typeも署名対象に含めます。
func (s *S3Store) PresignUpload(ctx context.Context, ref string, contentType string, expires time.Duration) (string, error) {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, ref, expires, url.Values{}, headers)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", ref, err)
	}
	return u.String(), nil
}

// PresignDownload はGET用の署名付きURLを発行します。
func (s *S3Store) PresignDownload(ctx context.Context, ref string, downloadName string, expires time.Duration) (string, error) {
	reqParams := url.Values{}
	if downloadName != "" {
		reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ref, expires, reqParams)
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %s: %w", ref, err)
	}
	return u.String(), nil
}

// List は指定プレフィックス配下のオブジェクト一覧を返します。
func (s *S3Store) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		infos = append(infos, Info{Ref: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return infos, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
