package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"scanwatch/internal/services"
)

func newTestConsoleLogger() (*slog.Logger, *bytes.Buffer, *slog.LevelVar) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	return slog.New(newConsoleHandler(&buf, lvl)), &buf, lvl
}

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	logger, buf, _ := newTestConsoleLogger()

	logger.Info("file queued", String(FieldComponent, "watcher"), String("path", "/in/scan.pdf"))

	line := buf.String()
	if !strings.Contains(line, " INFO watcher: file queued") {
		t.Fatalf("component not promoted into prefix: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not appear as a kv pair: %q", line)
	}
	if !strings.Contains(line, "path=/in/scan.pdf") {
		t.Fatalf("missing path attr: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	logger, buf, _ := newTestConsoleLogger()

	logger.Warn("rename conflict", String("final_name", "20240115 Smith Complaint.pdf"))

	if !strings.Contains(buf.String(), `final_name="20240115 Smith Complaint.pdf"`) {
		t.Fatalf("value with spaces not quoted: %q", buf.String())
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	logger, buf, lvl := newTestConsoleLogger()
	lvl.Set(slog.LevelWarn)

	logger.Info("suppressed")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("info record should be dropped: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	logger, buf, _ := newTestConsoleLogger()

	logger.WithGroup("retry").Info("attempt failed", Int("attempt", 2))
	logger.Info("breaker state", slog.Group("breaker", String("state", "OPEN")))

	out := buf.String()
	if !strings.Contains(out, "retry.attempt=2") {
		t.Fatalf("group prefix not applied: %q", out)
	}
	if !strings.Contains(out, "breaker.state=OPEN") {
		t.Fatalf("group attr not flattened: %q", out)
	}
}

func TestWithContextAnnotatesItemMetadata(t *testing.T) {
	logger, buf, _ := newTestConsoleLogger()

	ctx := services.WithItemID(context.Background(), 42)
	ctx = services.WithStage(ctx, "classify")
	ctx = services.WithRequestID(ctx, "req-123")

	WithContext(ctx, logger).Info("stage started")

	line := buf.String()
	for _, want := range []string{"item_id=42", "stage=classify", "correlation_id=req-123"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %q", want, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should report disabled at every level")
	}
}
