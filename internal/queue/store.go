package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scanwatch/internal/config"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "queue.db")
	return OpenPath(dbPath)
}

// OpenPath opens the queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewFile enqueues a detected scan file for processing. Enqueuing the same
// path twice while a prior item is still pending or processing returns the
// existing item rather than a duplicate.
func (s *Store) NewFile(ctx context.Context, sourcePath string) (*Item, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO queue_items (
            source_path, status, created_at, updated_at, elapsed_ms
        ) VALUES (?, ?, ?, ?, 0)`,
		sourcePath,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.activeBySourcePath(ctx, sourcePath)
		}
		return nil, fmt.Errorf("insert file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

func (s *Store) activeBySourcePath(ctx context.Context, sourcePath string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		selectColumns+" WHERE source_path = ? AND status IN (?, ?) ORDER BY id LIMIT 1",
		sourcePath, StatusPending, StatusProcessing,
	)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item by path %q: %w", sourcePath, err)
	}
	return item, nil
}

// Update persists mutable item fields.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("nil queue item")
	}
	item.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items SET
            source_path = ?, status = ?, document_type = ?, final_path = ?,
            correlation_id = ?, error_message = ?, elapsed_ms = ?,
            updated_at = ?, progress_stage = ?, last_heartbeat = ?
        WHERE id = ?`,
		item.SourcePath,
		item.Status,
		nullableString(item.DocumentType),
		nullableString(item.FinalPath),
		nullableString(item.CorrelationID),
		nullableString(item.ErrorMessage),
		item.ElapsedMs,
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableString(item.ProgressStage),
		nullableTime(item.LastHeartbeat),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}
	return nil
}

// NextForStatuses returns the oldest item whose status matches one of the
// provided statuses, or nil when none is available.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = status
	}
	query := selectColumns + " WHERE status IN (" + strings.Join(placeholders, ", ") + ") ORDER BY id LIMIT 1"
	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next item: %w", err)
	}
	return item, nil
}

// List returns queue items, optionally filtered by statuses, newest last.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := selectColumns
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Clear removes all queue items and returns the number removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, "", nil)
}

// ClearCompleted removes only completed queue items.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, "status = ?", []any{StatusCompleted})
}

// ClearFailed removes only failed queue items.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, "status = ?", []any{StatusFailed})
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	query := `UPDATE queue_items SET status = ?, error_message = NULL, progress_stage = NULL, updated_at = ? WHERE status = ?`
	args := []any{StatusPending, timestamp, StatusFailed}
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += " AND id IN (" + strings.Join(placeholders, ", ") + ")"
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing transitions in-flight items back to pending for retry.
// Used on daemon startup to recover from an unclean shutdown.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
		StatusPending, timestamp, StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// Health returns aggregate queue diagnostics.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var summary HealthSummary
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM queue_items GROUP BY status")
	if err != nil {
		return summary, fmt.Errorf("queue health: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return summary, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusReview:
			summary.Review = count
		}
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		"SELECT AVG(elapsed_ms) FROM queue_items WHERE status = ? AND elapsed_ms > 0",
		StatusCompleted,
	).Scan(&avg)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return summary, fmt.Errorf("queue avg elapsed: %w", err)
	}
	if avg.Valid {
		summary.AvgMs = int64(avg.Float64)
	}
	return summary, nil
}

func (s *Store) deleteWhere(ctx context.Context, where string, args []any) (int64, error) {
	query := "DELETE FROM queue_items"
	if where != "" {
		query += " WHERE " + where
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return res.RowsAffected()
}

const selectColumns = `SELECT
    id, source_path, status, document_type, final_path, correlation_id,
    error_message, elapsed_ms, created_at, updated_at, progress_stage, last_heartbeat
FROM queue_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item          Item
		documentType  sql.NullString
		finalPath     sql.NullString
		correlationID sql.NullString
		errorMessage  sql.NullString
		createdAt     string
		updatedAt     string
		progressStage sql.NullString
		lastHeartbeat sql.NullString
	)
	if err := row.Scan(
		&item.ID, &item.SourcePath, &item.Status, &documentType, &finalPath,
		&correlationID, &errorMessage, &item.ElapsedMs, &createdAt, &updatedAt,
		&progressStage, &lastHeartbeat,
	); err != nil {
		return nil, err
	}

	item.DocumentType = documentType.String
	item.FinalPath = finalPath.String
	item.CorrelationID = correlationID.String
	item.ErrorMessage = errorMessage.String
	item.ProgressStage = progressStage.String
	item.CreatedAt = parseTimestamp(createdAt)
	item.UpdatedAt = parseTimestamp(updatedAt)
	if lastHeartbeat.Valid {
		ts := parseTimestamp(lastHeartbeat.String)
		item.LastHeartbeat = &ts
	}
	return &item, nil
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
