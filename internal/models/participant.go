package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ParticipantSourceManual = "manual"
	ParticipantSourceOrder  = "order"
)

// Participant is one person holding one redeemable ticket. Code is the
// immutable redemption code, unique within the event.
//
// CheckedIn/CheckedInAt are a cache of ledger state for fast listing
// screens, set on every successful redemption. The checkin_history table is
// authoritative; these columns can be rebuilt from it at any time.
type Participant struct {
	bun.BaseModel `bun:"table:participants"`

	ID           string    `bun:"id,pk"`
	EventID      string    `bun:"event_id,notnull,unique:participants_code_event"`
	TicketTypeID string    `bun:"ticket_type_id,notnull"`
	OrderNumber  string    `bun:"order_number,nullzero"`
	Name         string    `bun:"name,notnull"`
	Email        string    `bun:"email,nullzero"`
	Phone        string    `bun:"phone,nullzero"`
	Code         string    `bun:"code,notnull,unique:participants_code_event"`
	QRPayload    string    `bun:"qr_payload,nullzero"`
	Source       string    `bun:"source,notnull"`
	CheckedIn    bool      `bun:"checked_in"`
	CheckedInAt  time.Time `bun:"checked_in_at,nullzero"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}
