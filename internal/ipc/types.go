package ipc

import (
	"time"

	"scanwatch/internal/queue"
)

// QueueItem is the wire representation of a queue entry.
type QueueItem struct {
	ID            int64  `json:"id"`
	SourcePath    string `json:"source_path"`
	Status        string `json:"status"`
	DocumentType  string `json:"document_type,omitempty"`
	FinalPath     string `json:"final_path,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ProgressStage string `json:"progress_stage,omitempty"`
	ElapsedMs     int64  `json:"elapsed_ms"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// FromItem converts a queue item into its wire representation.
func FromItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	return QueueItem{
		ID:            item.ID,
		SourcePath:    item.SourcePath,
		Status:        string(item.Status),
		DocumentType:  item.DocumentType,
		FinalPath:     item.FinalPath,
		CorrelationID: item.CorrelationID,
		ErrorMessage:  item.ErrorMessage,
		ProgressStage: item.ProgressStage,
		ElapsedMs:     item.ElapsedMs,
		CreatedAt:     item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.Format(time.RFC3339),
	}
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PendingScans int            `json:"pending_scans"`
	QueueStats   map[string]int `json:"queue_stats"`
	AvgElapsedMs int64          `json:"avg_elapsed_ms"`
	LastError    string         `json:"last_error"`
	LastItem     *QueueItem     `json:"last_item"`
	LockPath     string         `json:"lock_path"`
	QueueDBPath  string         `json:"queue_db_path"`
	PID          int            `json:"pid"`
}

// StopRequest shuts the daemon down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueClearRequest removes queue items. Scope selects which ones:
// "all", "completed", or "failed".
type QueueClearRequest struct {
	Scope string `json:"scope"`
}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int   `json:"total"`
	Pending    int   `json:"pending"`
	Processing int   `json:"processing"`
	Completed  int   `json:"completed"`
	Failed     int   `json:"failed"`
	Review     int   `json:"review"`
	AvgMs      int64 `json:"avg_ms"`
}

// ProcessFileRequest enqueues a document manually.
type ProcessFileRequest struct {
	Path string `json:"path"`
}

// ProcessFileResponse reports the enqueued item.
type ProcessFileResponse struct {
	Item QueueItem `json:"item"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
