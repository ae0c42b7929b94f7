package services_test

import (
	"errors"
	"strings"
	"testing"

	"scanwatch/internal/queue"
	"scanwatch/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "classify", "request", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"classify", "request", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureStatusMapping(t *testing.T) {
	configErr := services.Wrap(services.ErrConfiguration, "rename", "resolve target dir", "missing", nil)
	if status := services.FailureStatus(configErr); status != queue.StatusReview {
		t.Fatalf("expected review for configuration error, got %s", status)
	}

	transientErr := services.Wrap(services.ErrTransient, "rename", "replace", "replace failed", errors.New("io"))
	if status := services.FailureStatus(transientErr); status != queue.StatusFailed {
		t.Fatalf("expected failed for transient error, got %s", status)
	}

	if status := services.FailureStatus(nil); status != queue.StatusFailed {
		t.Fatalf("expected failed for nil error, got %s", status)
	}
}

func TestDetailsStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrRateLimited, "classify", "request", "too many requests", nil)
	details := services.Details(err)
	if strings.HasPrefix(details.Message, services.ErrRateLimited.Error()) {
		t.Fatalf("expected marker prefix stripped, got %q", details.Message)
	}
	if !strings.Contains(details.Message, "too many requests") {
		t.Fatalf("expected message retained, got %q", details.Message)
	}
}
