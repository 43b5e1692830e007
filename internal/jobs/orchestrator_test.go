package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/file-forge/internal/blob"
	"github.com/yourusername/file-forge/internal/tools"
)

func newTestOrchestrator(t *testing.T, store RecordStore, blobs blob.Store, queue TaskEnqueuer) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(store, blobs, queue, 20, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return o
}

func seedBlob(t *testing.T, store blob.Store, ref string, data []byte) {
	t.Helper()
	if err := store.Put(context.Background(), ref, "application/octet-stream", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("failed to seed blob %s: %v", ref, err)
	}
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Fatalf("unexpected error code: %s (want %s, message=%s)", apiErr.Code, code, apiErr.Message)
	}
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	store := newMemStore()
	blobs := blob.NewMemory()
	queue := &fakeQueue{}
	seedBlob(t, blobs, "uploads/owner-a/one.pdf", []byte("pdf-1"))
	seedBlob(t, blobs, "uploads/owner-a/two.pdf", []byte("pdf-2"))

	o := newTestOrchestrator(t, store, blobs, queue)
	job, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "merge",
		InputRefs:  []string{"uploads/owner-a/one.pdf", "uploads/owner-a/two.pdf"},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if job.Status != StatusPending {
		t.Fatalf("unexpected status right after submit: %s", job.Status)
	}
	if job.FileCount != 2 {
		t.Fatalf("unexpected file count: %d", job.FileCount)
	}
	if job.ID == "" {
		t.Fatal("expected job id to be assigned")
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("job record was not persisted: %v", err)
	}
	if stored.Status != StatusPending {
		t.Fatalf("persisted status = %s, want pending", stored.Status)
	}

	if queue.count() != 1 {
		t.Fatalf("expected exactly one enqueued task, got %d", queue.count())
	}
	if got := queue.payloads[0].JobID; got != job.ID {
		t.Fatalf("task payload references job %s, want %s", got, job.ID)
	}
}

func TestSubmitRejectsMissingUpload(t *testing.T) {
	store := newMemStore()
	queue := &fakeQueue{}
	o := newTestOrchestrator(t, store, blob.NewMemory(), queue)

	_, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "merge",
		InputRefs:  []string{"uploads/owner-a/never-uploaded.pdf"},
	})
	assertErrorCode(t, err, "INVALID_INPUT")
	if queue.count() != 0 {
		t.Fatal("no task must be enqueued for a rejected submission")
	}
}

func TestSubmitRejectsEmptyInputs(t *testing.T) {
	queue := &fakeQueue{}
	o := newTestOrchestrator(t, newMemStore(), blob.NewMemory(), queue)

	_, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "merge",
		InputRefs:  []string{},
	})
	assertErrorCode(t, err, "INVALID_INPUT")
	if queue.count() != 0 {
		t.Fatal("no task must be enqueued for an empty submission")
	}
}

func TestSubmitRejectsTooManyInputs(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), blob.NewMemory(), &fakeQueue{})

	refs := make([]string, 21)
	for i := range refs {
		refs[i] = fmt.Sprintf("uploads/owner-a/file-%d.pdf", i)
	}
	_, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "merge",
		InputRefs:  refs,
	})
	assertErrorCode(t, err, "INVALID_INPUT")
}

func TestSubmitRejectsUnknownTool(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), blob.NewMemory(), &fakeQueue{})

	_, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "rotate",
		InputRefs:  []string{"uploads/owner-a/one.pdf"},
	})
	assertErrorCode(t, err, "INVALID_INPUT")
}

func TestSubmitRejectsEmptyOwner(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), blob.NewMemory(), &fakeQueue{})

	_, err := o.Submit(context.Background(), &SubmitRequest{
		ToolType:  "merge",
		InputRefs: []string{"uploads/x/one.pdf"},
	})
	assertErrorCode(t, err, "INVALID_INPUT")
}

func TestSubmitRejectsQualityForMerge(t *testing.T) {
	blobs := blob.NewMemory()
	seedBlob(t, blobs, "uploads/owner-a/one.pdf", []byte("pdf-1"))
	o := newTestOrchestrator(t, newMemStore(), blobs, &fakeQueue{})

	_, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "merge",
		InputRefs:  []string{"uploads/owner-a/one.pdf"},
		Quality:    "high",
	})
	assertErrorCode(t, err, "INVALID_INPUT")
}

func TestSubmitReduceRequiresExactlyOneInput(t *testing.T) {
	blobs := blob.NewMemory()
	seedBlob(t, blobs, "uploads/owner-a/one.pdf", []byte("pdf-1"))
	seedBlob(t, blobs, "uploads/owner-a/two.pdf", []byte("pdf-2"))
	o := newTestOrchestrator(t, newMemStore(), blobs, &fakeQueue{})

	_, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "reduce",
		InputRefs:  []string{"uploads/owner-a/one.pdf", "uploads/owner-a/two.pdf"},
	})
	assertErrorCode(t, err, "INVALID_INPUT")

	job, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "reduce",
		InputRefs:  []string{"uploads/owner-a/one.pdf"},
	})
	if err != nil {
		t.Fatalf("single-input reduce should be accepted: %v", err)
	}
	if job.Quality != tools.QualityMedium {
		t.Fatalf("expected default quality medium, got %s", job.Quality)
	}
}

func TestSubmitCompensatesWhenEnqueueFails(t *testing.T) {
	store := newMemStore()
	blobs := blob.NewMemory()
	seedBlob(t, blobs, "uploads/owner-a/one.pdf", []byte("pdf-1"))
	queue := &fakeQueue{err: errors.New("redis unreachable")}

	o := newTestOrchestrator(t, store, blobs, queue)
	_, err := o.Submit(context.Background(), &SubmitRequest{
		OwnerToken: "owner-a",
		ToolType:   "merge",
		InputRefs:  []string{"uploads/owner-a/one.pdf"},
	})
	assertErrorCode(t, err, "INTERNAL_ERROR")

	// 投入に失敗したpendingレコードは残らない
	for id := range store.jobs {
		t.Fatalf("orphan job record left behind: %s", id)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), blob.NewMemory(), &fakeQueue{})

	_, err := o.GetStatus(context.Background(), "no-such-job")
	assertErrorCode(t, err, "JOB_NOT_FOUND")
}

func TestListForOwnerCapsLimit(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, blob.NewMemory(), &fakeQueue{})

	if _, err := o.ListForOwner(context.Background(), "owner-a", 9999); err != nil {
		t.Fatalf("ListForOwner returned error: %v", err)
	}
	if store.lastListLimit != maxListLimit {
		t.Fatalf("limit was not capped: %d", store.lastListLimit)
	}
}

func TestDeleteByNonOwnerForbidden(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	store.put(&Job{ID: "job-1", OwnerToken: "owner-a", Tool: tools.ToolMerge, Status: StatusCompleted, CreatedAt: now, UpdatedAt: now})

	o := newTestOrchestrator(t, store, blob.NewMemory(), &fakeQueue{})
	err := o.Delete(context.Background(), "job-1", "owner-b")
	assertErrorCode(t, err, "FORBIDDEN")

	if _, err := store.Get(context.Background(), "job-1"); err != nil {
		t.Fatalf("record must survive a forbidden delete: %v", err)
	}
}

func TestDeleteRemovesRecordAndResultBlob(t *testing.T) {
	store := newMemStore()
	blobs := blob.NewMemory()
	seedBlob(t, blobs, "results/job-1/merged.pdf", []byte("result"))

	now := time.Now().UTC()
	store.put(&Job{
		ID:         "job-1",
		OwnerToken: "owner-a",
		Tool:       tools.ToolMerge,
		Status:     StatusCompleted,
		ResultRef:  "results/job-1/merged.pdf",
		CreatedAt:  now,
		UpdatedAt:  now,
	})

	o := newTestOrchestrator(t, store, blobs, &fakeQueue{})
	if err := o.Delete(context.Background(), "job-1", "owner-a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := store.Get(context.Background(), "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record should be gone, got err=%v", err)
	}
	if _, err := blobs.Stat(context.Background(), "results/job-1/merged.pdf"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("result blob should be gone, got err=%v", err)
	}
}

func TestIssueDownloadURLRequiresCompleted(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	store.put(&Job{ID: "job-1", OwnerToken: "owner-a", Tool: tools.ToolMerge, Status: StatusPending, CreatedAt: now, UpdatedAt: now})

	o := newTestOrchestrator(t, store, blob.NewMemory(), &fakeQueue{})
	_, _, err := o.IssueDownloadURL(context.Background(), "job-1", time.Hour)
	assertErrorCode(t, err, "INVALID_INPUT")
}

func TestIssueDownloadURLForCompletedJob(t *testing.T) {
	store := newMemStore()
	blobs := blob.NewMemory()
	seedBlob(t, blobs, "results/job-1/merged.pdf", []byte("result"))

	now := time.Now().UTC()
	store.put(&Job{
		ID:         "job-1",
		OwnerToken: "owner-a",
		Tool:       tools.ToolMerge,
		Status:     StatusCompleted,
		ResultRef:  "results/job-1/merged.pdf",
		CreatedAt:  now,
		UpdatedAt:  now,
	})

	o := newTestOrchestrator(t, store, blobs, &fakeQueue{})
	url, fileName, err := o.IssueDownloadURL(context.Background(), "job-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueDownloadURL returned error: %v", err)
	}
	if url == "" {
		t.Fatal("expected a download url")
	}
	if fileName != "merged.pdf" {
		t.Fatalf("unexpected file name: %s", fileName)
	}
	if !strings.Contains(url, "results/job-1/merged.pdf") {
		t.Fatalf("url does not reference the result object: %s", url)
	}
}
