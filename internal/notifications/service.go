// Package notifications delivers ntfy push notifications for processing
// outcomes and health alerts, with a noop fallback when unconfigured.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scanwatch/internal/config"
)

const userAgent = "Scanwatch-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyFileDetected(ctx context.Context, filename string) error
	NotifyProcessingCompleted(ctx context.Context, documentType, finalName string) error
	NotifyUnknownDocument(ctx context.Context, filename string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	NotifyHealthAlert(ctx context.Context, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		unknown:   cfg.Notifications.Unknown,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	unknown   bool
	errors    bool
}

func (n *ntfyService) NotifyFileDetected(ctx context.Context, filename string) error {
	if !n.completed {
		return nil
	}
	data := payload{
		title:   "Scanwatch - File Detected",
		message: fmt.Sprintf("New scan queued: %s", strings.TrimSpace(filename)),
		tags:    []string{"scanwatch", "intake", "detected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProcessingCompleted(ctx context.Context, documentType, finalName string) error {
	if !n.completed {
		return nil
	}
	documentType = strings.TrimSpace(documentType)
	if documentType == "" {
		documentType = "document"
	}
	data := payload{
		title:   "Scanwatch - Filed",
		message: fmt.Sprintf("Filed %s as %s", documentType, strings.TrimSpace(finalName)),
		tags:    []string{"scanwatch", "workflow", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUnknownDocument(ctx context.Context, filename string) error {
	if !n.unknown {
		return nil
	}
	data := payload{
		title:   "Scanwatch - Unknown Document",
		message: fmt.Sprintf("Could not classify: %s\nManual review required", strings.TrimSpace(filename)),
		tags:    []string{"scanwatch", "unknown", "review"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Scanwatch - Error",
		message:  builder.String(),
		tags:     []string{"scanwatch", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyHealthAlert(ctx context.Context, message string) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Scanwatch - Health Alert",
		message:  strings.TrimSpace(message),
		tags:     []string{"scanwatch", "health", "alert"},
		priority: "urgent",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scanwatch - Test",
		message:  "Notification system test",
		tags:     []string{"scanwatch", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyFileDetected(context.Context, string) error                { return nil }
func (noopService) NotifyProcessingCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyUnknownDocument(context.Context, string) error             { return nil }
func (noopService) NotifyError(context.Context, error, string) error                { return nil }
func (noopService) NotifyHealthAlert(context.Context, string) error                 { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
