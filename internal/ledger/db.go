package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// ErrPersistence wraps any failure to durably commit a ledger row. It is the
// one condition a redemption propagates as a hard error: reporting success
// without a durable entry would corrupt the audit trail.
var ErrPersistence = errors.New("ledger persistence failure")

type DB struct {
	Bun *bun.DB
}

// Append inserts one redemption entry. There is no update or delete path:
// corrections are new entries with Notes set.
func (d *DB) Append(ctx context.Context, entry models.CheckinHistory) error {
	_, err := d.Bun.NewInsert().Model(&entry).Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Query returns a participant's entries for an event in ascending append
// order, the order the policy evaluator consumes.
func (d *DB) Query(ctx context.Context, eventID, participantID string) ([]models.CheckinHistory, error) {
	var entries []models.CheckinHistory
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Where("participant_id = ?", participantID).
		Order("entry_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// QueryForDisplay returns entries newest-first for operator screens. When
// participantID is empty the whole event's history is returned.
func (d *DB) QueryForDisplay(ctx context.Context, eventID, participantID string, limit int) ([]models.CheckinHistory, error) {
	q := d.Bun.NewSelect().
		Model((*models.CheckinHistory)(nil)).
		Where("event_id = ?", eventID).
		Order("checked_in_at DESC", "entry_number DESC")
	if participantID != "" {
		q = q.Where("participant_id = ?", participantID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []models.CheckinHistory
	if err := q.Scan(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountForEvent returns the total number of redemptions recorded for an
// event, for reconciliation against station counters.
func (d *DB) CountForEvent(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.CheckinHistory)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}
