package queue_test

import (
	"context"
	"fmt"
	"testing"

	"scanwatch/internal/queue"
	"scanwatch/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.NewFile(ctx, "/scans/SCAN-0001.pdf")
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", item.Status)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.SourcePath != "/scans/SCAN-0001.pdf" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
}

func TestNewFileDeduplicatesActiveItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first, err := store.NewFile(ctx, "/scans/SCAN-0002.pdf")
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	second, err := store.NewFile(ctx, "/scans/SCAN-0002.pdf")
	if err != nil {
		t.Fatalf("duplicate NewFile failed: %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("expected duplicate enqueue to return existing item %d, got %#v", first.ID, second)
	}

	// A completed item releases the path for re-detection.
	first.Status = queue.StatusCompleted
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	third, err := store.NewFile(ctx, "/scans/SCAN-0002.pdf")
	if err != nil {
		t.Fatalf("NewFile after completion failed: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("expected a fresh item after prior run completed")
	}
}

func TestNextForStatusesReturnsOldestPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var firstID int64
	for i := 0; i < 3; i++ {
		item, err := store.NewFile(ctx, fmt.Sprintf("/scans/SCAN-%04d.pdf", i))
		if err != nil {
			t.Fatalf("NewFile failed: %v", err)
		}
		if i == 0 {
			firstID = item.ID
		}
	}

	next, err := store.NextForStatuses(ctx, queue.StatusPending)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if next == nil || next.ID != firstID {
		t.Fatalf("expected oldest pending item %d, got %#v", firstID, next)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.NewFile(ctx, "/scans/SCAN-stuck.pdf")
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	item.Status = queue.StatusProcessing
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item reset, got %d", count)
	}

	reset, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if reset.Status != queue.StatusPending {
		t.Fatalf("expected pending after reset, got %s", reset.Status)
	}
}

func TestRetryFailedResetsSubset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var failedIDs []int64
	for i := 0; i < 2; i++ {
		item, err := store.NewFile(ctx, fmt.Sprintf("/scans/SCAN-fail-%d.pdf", i))
		if err != nil {
			t.Fatalf("NewFile failed: %v", err)
		}
		item.SetFailed("classification failed")
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		failedIDs = append(failedIDs, item.ID)
	}

	count, err := store.RetryFailed(ctx, failedIDs[0])
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item retried, got %d", count)
	}

	retried, err := store.GetByID(ctx, failedIDs[0])
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retried.Status != queue.StatusPending || retried.ErrorMessage != "" {
		t.Fatalf("expected clean pending item, got %#v", retried)
	}

	untouched, err := store.GetByID(ctx, failedIDs[1])
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if untouched.Status != queue.StatusFailed {
		t.Fatalf("expected other item to remain failed, got %s", untouched.Status)
	}
}

func TestHealthSummaryCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	statuses := []queue.Status{
		queue.StatusPending,
		queue.StatusCompleted,
		queue.StatusCompleted,
		queue.StatusFailed,
	}
	for i, status := range statuses {
		item, err := store.NewFile(ctx, fmt.Sprintf("/scans/SCAN-health-%d.pdf", i))
		if err != nil {
			t.Fatalf("NewFile failed: %v", err)
		}
		item.Status = status
		if status == queue.StatusCompleted {
			item.ElapsedMs = 1000
		}
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if summary.Total != 4 || summary.Pending != 1 || summary.Completed != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if summary.AvgMs != 1000 {
		t.Fatalf("expected avg 1000ms, got %d", summary.AvgMs)
	}
}
