package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// CreateDLQEntry parks a failed payload for operator review.
func (s *Store) CreateDLQEntry(ctx context.Context, entry *eld.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = eld.DLQPending
	}
	now := time.Now().UTC()
	if entry.FirstFailureAt.IsZero() {
		entry.FirstFailureAt = now
	}
	if entry.LastFailureAt.IsZero() {
		entry.LastFailureAt = now
	}

	return s.db.WithContext(ctx).Create(entry).Error
}

// GetDLQEntry loads an entry including its original payload.
func (s *Store) GetDLQEntry(ctx context.Context, id string) (*eld.DLQEntry, error) {
	var entry eld.DLQEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		return nil, convertNotFoundError(err, eld.ErrDLQEntryNotFound)
	}
	return &entry, nil
}

// ListDLQEntries pages entries newest first, optionally filtered by
// status. Payloads are omitted; the listing is a triage surface and
// payloads can run to the batch size limit.
func (s *Store) ListDLQEntries(ctx context.Context, status eld.DLQStatus, limit, offset int) ([]*eld.DLQEntry, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	db := s.db.WithContext(ctx).Omit("original_payload")
	if status != "" {
		db = db.Where("status = ?", status)
	}

	var entries []*eld.DLQEntry
	err := db.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// transitionDLQEntry moves an entry between statuses with a
// compare-and-set so two operators acting on the same entry cannot
// both win. extra columns ride along with the status change.
func (s *Store) transitionDLQEntry(ctx context.Context, id string, from, to eld.DLQStatus, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).Model(&eld.DLQEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetDLQEntry(ctx, id); err != nil {
			return err
		}
		return eld.ErrDLQIllegalTransition
	}
	return nil
}

// MarkDLQRetrying claims a pending entry for a retry attempt.
func (s *Store) MarkDLQRetrying(ctx context.Context, id string) error {
	return s.transitionDLQEntry(ctx, id, eld.DLQPending, eld.DLQRetrying, nil)
}

// ResolveDLQEntry closes a retrying entry whose payload made it into
// the event store, recording who resolved it and the committed event.
func (s *Store) ResolveDLQEntry(ctx context.Context, id, resolvedBy string, eventID *string, notes string) error {
	return s.transitionDLQEntry(ctx, id, eld.DLQRetrying, eld.DLQResolved, map[string]any{
		"resolved_by":       resolvedBy,
		"resolved_event_id": eventID,
		"resolution_notes":  notes,
	})
}

// RequeueDLQEntry returns a retrying entry to pending after a failed
// attempt, bumping the retry count and failure bookkeeping.
func (s *Store) RequeueDLQEntry(ctx context.Context, id, failureReason string) error {
	return s.transitionDLQEntry(ctx, id, eld.DLQRetrying, eld.DLQPending, map[string]any{
		"retry_count":     gorm.Expr("retry_count + 1"),
		"failure_reason":  failureReason,
		"last_failure_at": time.Now().UTC(),
	})
}

// DiscardDLQEntry terminally discards a pending entry.
func (s *Store) DiscardDLQEntry(ctx context.Context, id, resolvedBy, notes string) error {
	return s.transitionDLQEntry(ctx, id, eld.DLQPending, eld.DLQDiscarded, map[string]any{
		"resolved_by":      resolvedBy,
		"resolution_notes": notes,
	})
}

// DLQStats aggregates queue depth per status. alertThreshold of zero
// disables the pending-depth alert.
func (s *Store) DLQStats(ctx context.Context, alertThreshold int) (*eld.DLQStats, error) {
	var rows []struct {
		Status eld.DLQStatus
		Count  int
	}
	err := s.db.WithContext(ctx).Model(&eld.DLQEntry{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &eld.DLQStats{}
	for _, row := range rows {
		switch row.Status {
		case eld.DLQPending:
			stats.Pending = row.Count
		case eld.DLQRetrying:
			stats.Retrying = row.Count
		case eld.DLQResolved:
			stats.Resolved = row.Count
		case eld.DLQDiscarded:
			stats.Discarded = row.Count
		}
		stats.Total += row.Count
	}
	stats.AlertThresholdExceeded = alertThreshold > 0 && stats.Pending > alertThreshold

	return stats, nil
}
