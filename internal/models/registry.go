package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type StationSettings struct {
	Sound               bool `json:"sound"`
	AutoPrint           bool `json:"auto_print"`
	RequireConfirmation bool `json:"require_confirmation"`
	AdvancedMode        bool `json:"advanced_mode"`
}

func (s StationSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StationSettings) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = StationSettings{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported settings column type %T", src)
	}
}

// CheckinStation is a physical credentialing point. CheckedInCount is a
// rolling monitoring counter bumped on successful redemptions routed through
// the station; it is never decremented and never recomputed. The ledger is
// the reconciliation source for audits.
type CheckinStation struct {
	bun.BaseModel `bun:"table:checkin_stations"`

	ID             string          `bun:"id,pk"`
	EventID        string          `bun:"event_id,notnull"`
	Name           string          `bun:"name,notnull"`
	AccessZone     string          `bun:"access_zone,nullzero"` // empty = all zones
	CheckedInCount int             `bun:"checked_in_count"`
	LastActivity   time.Time       `bun:"last_activity,nullzero"`
	Settings       StationSettings `bun:"settings,type:jsonb"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
}

// AccessZone is a named physical or logical area within an event.
type AccessZone struct {
	bun.BaseModel `bun:"table:access_zones"`

	ID        string    `bun:"id,pk"`
	EventID   string    `bun:"event_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Capacity  int       `bun:"capacity"`
	OpensAt   time.Time `bun:"opens_at,nullzero"`
	ClosesAt  time.Time `bun:"closes_at,nullzero"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
