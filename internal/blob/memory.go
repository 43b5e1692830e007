package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory はテストとローカル開発向けのインメモリStore実装です。
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// NewMemory は空のインメモリStoreを作成します。
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

// Exists はオブジェクトの存在を確認します。
func (m *Memory) Exists(_ context.Context, ref string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[ref]
	return ok, nil
}

// Stat はオブジェクトのメタデータを返します。
func (m *Memory) Stat(_ context.Context, ref string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[ref]
	if !ok {
		return Info{}, ErrNotFound
	}
	return Info{Ref: ref, Size: int64(len(obj.data)), LastModified: obj.lastModified}, nil
}

// Get はオブジェクトの読み取りストリームを返します。
func (m *Memory) Get(_ context.Context, ref string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Put はオブジェクトを保存します。
func (m *Memory) Put(_ context.Context, ref string, contentType string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ref] = memObject{data: data, contentType: contentType, lastModified: time.Now()}
	return nil
}

// Delete はオブジェクトを削除します。存在しない場合も成功扱いです。
func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, ref)
	return nil
}

// DeleteMany は複数オブジェクトをまとめて削除します。
func (m *Memory) DeleteMany(_ context.Context, refs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		delete(m.objects, ref)
	}
	return nil
}

// PresignUpload は擬似的な署名付きURLを返します。
func (m *Memory) PresignUpload(_ context.Context, ref string, _ string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s?method=PUT&expires=%d", ref, int(expires.Seconds())), nil
}

// PresignDownload は擬似的な署名付きURLを返します。
func (m *Memory) PresignDownload(_ context.Context, ref string, _ string, expires time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[ref]; !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("memory://%s?method=GET&expires=%d", ref, int(expires.Seconds())), nil
}

// List は指定プレフィックス配下のオブジェクト一覧をキー順で返します。
func (m *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []Info
	for ref, obj := range m.objects {
		if !strings.HasPrefix(ref, prefix) {
			continue
		}
		infos = append(infos, Info{Ref: ref, Size: int64(len(obj.data)), LastModified: obj.lastModified})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Ref < infos[j].Ref })
	return infos, nil
}

// Touch は最終更新時刻を書き換えます。保持期間まわりのテスト用です。
func (m *Memory) Touch(ref string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[ref]
	if !ok {
		return
	}
	obj.lastModified = t
	m.objects[ref] = obj
}
