package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	MethodQR     = "qr"
	MethodManual = "manual"
	MethodBulk   = "bulk"
)

// CheckinHistory is one redemption event. Rows are append-only: corrections
// are recorded as new entries with Notes, never as updates or deletes.
//
// EntryNumber is the 1-based rank of this redemption within the
// (participant, event) history, assigned under the participant lock so the
// sequence has no gaps or duplicate ranks.
type CheckinHistory struct {
	bun.BaseModel `bun:"table:checkin_history"`

	ID            string    `bun:"id,pk"`
	EventID       string    `bun:"event_id,notnull"`
	ParticipantID string    `bun:"participant_id,notnull"`
	TicketTypeID  string    `bun:"ticket_type_id,notnull"`
	CheckedInAt   time.Time `bun:"checked_in_at,notnull"`
	EntryNumber   int       `bun:"entry_number,notnull"`
	AccessZone    string    `bun:"access_zone,nullzero"`
	StationID     string    `bun:"station_id,nullzero"`
	OperatorID    string    `bun:"operator_id,nullzero"`
	Method        string    `bun:"method,notnull"`
	Notes         string    `bun:"notes,nullzero"`
}
