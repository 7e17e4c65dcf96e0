package wallet

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds the stored value for one wristband within an event.
// Balance is integer minor units (cents) and never goes negative.
type Wallet struct {
	ID           int       `db:"id" json:"id"`
	EventID      uuid.UUID `db:"event_id" json:"event_id"`
	WristbandID  int       `db:"wristband_id" json:"wristband_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
