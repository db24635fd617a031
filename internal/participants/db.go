package participants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// ErrUnknownCode means the scanned or typed code matches no participant for
// the event. Soft failure: the operator re-scans.
var ErrUnknownCode = errors.New("unknown check-in code")

type DB struct {
	Bun *bun.DB
}

// ResolveCode looks up a redemption code for an event and returns the
// participant together with the ticket type holding the access policy.
// Manual participants and order attendees live in the same table, so one
// indexed lookup covers both sources.
func (d *DB) ResolveCode(ctx context.Context, code, eventID string) (*models.Participant, *models.TicketType, error) {
	var participant models.Participant
	err := d.Bun.NewSelect().
		Model(&participant).
		Where("code = ?", code).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrUnknownCode
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve code: %w", err)
	}

	var ticketType models.TicketType
	err = d.Bun.NewSelect().
		Model(&ticketType).
		Where("id = ?", participant.TicketTypeID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrUnknownCode
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ticket type: %w", err)
	}

	return &participant, &ticketType, nil
}

// MarkCheckedIn updates the cached checked-in flag. The flag is sticky: it
// is set on every successful entry and never cleared by the service (the
// ledger distinguishes first from Nth entry).
func (d *DB) MarkCheckedIn(ctx context.Context, participantID string, at time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Participant)(nil)).
		Set("checked_in = ?", true).
		Set("checked_in_at = ?", at).
		Where("id = ?", participantID).
		Exec(ctx)
	return err
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	var participant models.Participant
	err := d.Bun.NewSelect().
		Model(&participant).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Participant, error) {
	var list []models.Participant
	err := d.Bun.NewSelect().
		Model(&list).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Create inserts a participant. Used for manual additions through the API
// and for attendees provisioned from order-completion events.
func (d *DB) Create(ctx context.Context, p models.Participant) (models.Participant, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Source == "" {
		p.Source = models.ParticipantSourceManual
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if _, err := d.Bun.NewInsert().Model(&p).Exec(ctx); err != nil {
		return models.Participant{}, fmt.Errorf("failed to create participant: %w", err)
	}
	return p, nil
}

func (d *DB) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := d.Bun.NewSelect().
		Model(&tt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tt, nil
}
