package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore は RecordStore のインメモリ実装です。
// Postgres実装と同じ条件付き更新の意味論を再現します。
type memStore struct {
	mu            sync.Mutex
	jobs          map[string]*Job
	lastListLimit int
	failCreate    error
	failGet       error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*Job)}
}

func cloneJob(j *Job) *Job {
	c := *j
	c.InputRefs = append([]string(nil), j.InputRefs...)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func (m *memStore) put(j *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = cloneJob(j)
}

func (m *memStore) Create(_ context.Context, job *Job) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.put(job)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Job, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memStore) ListByOwner(_ context.Context, ownerToken string, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastListLimit = limit

	var out []*Job
	for _, j := range m.jobs {
		if j.OwnerToken == ownerToken {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkProcessing(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status.IsTerminal() {
		return false, nil
	}
	j.Status = StatusProcessing
	j.UpdatedAt = now
	return true, nil
}

func (m *memStore) MarkCompleted(_ context.Context, id, resultRef string, originalSize, resultSize int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = StatusCompleted
	j.ResultRef = resultRef
	j.ErrorDetail = ""
	j.OriginalSize = originalSize
	j.ResultSize = resultSize
	j.UpdatedAt = now
	if j.CompletedAt == nil {
		at := now
		j.CompletedAt = &at
	}
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id, detail string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = StatusFailed
	j.ErrorDetail = detail
	j.ResultRef = ""
	j.UpdatedAt = now
	if j.CompletedAt == nil {
		at := now
		j.CompletedAt = &at
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *memStore) ListExpiredCompleted(_ context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for _, j := range m.jobs {
		if j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			out = append(out, cloneJob(j))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) ListStuckProcessing(_ context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for _, j := range m.jobs {
		if j.Status == StatusProcessing && j.UpdatedAt.Before(cutoff) {
			out = append(out, cloneJob(j))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeQueue は投入されたペイロードを記録する TaskEnqueuer です。
type fakeQueue struct {
	mu       sync.Mutex
	payloads []*TaskPayload
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, payload *TaskPayload) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return "task-1", nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payloads)
}
