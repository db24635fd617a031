package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// AccessControl is the redemption policy attached to a ticket type. It is
// persisted as a single JSON column so the same model works on Postgres and
// the SQLite dialect used in tests.
type AccessControl struct {
	AllowMultipleEntries bool     `json:"allow_multiple_entries"`
	MaxEntriesPerDay     int      `json:"max_entries_per_day"`    // 0 = unlimited
	ValidDays            []string `json:"valid_days,omitempty"`   // ISO dates (YYYY-MM-DD); empty = any day
	AccessZones          []string `json:"access_zones,omitempty"` // empty = unrestricted
	RequiresEscort       bool     `json:"requires_escort"`
	SpecialPermissions   []string `json:"special_permissions,omitempty"`
}

func (ac AccessControl) Value() (driver.Value, error) {
	return json.Marshal(ac)
}

func (ac *AccessControl) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*ac = AccessControl{}
		return nil
	case []byte:
		return json.Unmarshal(v, ac)
	case string:
		return json.Unmarshal([]byte(v), ac)
	default:
		return fmt.Errorf("unsupported access_control column type %T", src)
	}
}

// AllowsZone reports whether the policy permits entry into the given zone.
// An empty zone list means the ticket is unrestricted.
func (ac AccessControl) AllowsZone(zone string) bool {
	if len(ac.AccessZones) == 0 || zone == "" {
		return true
	}
	for _, z := range ac.AccessZones {
		if z == zone {
			return true
		}
	}
	return false
}

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID             string        `bun:"id,pk"`
	EventID        string        `bun:"event_id,notnull"`
	Name           string        `bun:"name,notnull"`
	Price          float64       `bun:"price"`
	TotalQuantity  int           `bun:"total_quantity"`
	SoldQuantity   int           `bun:"sold_quantity"`
	SaleStart      time.Time     `bun:"sale_start,nullzero"`
	SaleEnd        time.Time     `bun:"sale_end,nullzero"`
	MaxPerPurchase int           `bun:"max_per_purchase"`
	Visible        bool          `bun:"visible"`
	AccessControl  AccessControl `bun:"access_control,type:jsonb"`
	CreatedAt      time.Time     `bun:"created_at,notnull"`
}
