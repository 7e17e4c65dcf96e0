package device

import (
	"time"

	"github.com/google/uuid"
)

const (
	ModeCharge = "charge"
	ModeTopUp  = "topup"

	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Device is a point-of-sale terminal authorized for one event.
type Device struct {
	ID        int       `db:"id" json:"id"`
	EventID   uuid.UUID `db:"event_id" json:"event_id"`
	Name      string    `db:"name" json:"name"`
	Mode      string    `db:"mode" json:"mode"`
	BoothID   *int      `db:"booth_id" json:"booth_id,omitempty"`
	APIKey    string    `db:"api_key" json:"-"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Booth struct {
	ID        int       `db:"id" json:"id"`
	EventID   uuid.UUID `db:"event_id" json:"event_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
