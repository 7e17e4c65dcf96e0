package wristband

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive      = "active"
	StatusBlocked     = "blocked"
	StatusInvalidated = "invalidated"
)

// Wristband is a physical NFC tag bound to one event. The counter is
// the sole replay-defense state: it only moves forward, through a
// committed charge or an administrative resync/replace.
type Wristband struct {
	ID        int       `db:"id" json:"id"`
	EventID   uuid.UUID `db:"event_id" json:"event_id"`
	UID       string    `db:"uid" json:"uid"`
	TagID     string    `db:"tag_id" json:"tag_id"`
	Counter   uint32    `db:"counter" json:"counter"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	ReplaceStatusPending = "pending"
	ReplaceStatusDone    = "done"
)

// ReplaceSession tracks an in-progress physical wristband swap started
// by an operator.
type ReplaceSession struct {
	ID             int       `db:"id" json:"id"`
	EventID        uuid.UUID `db:"event_id" json:"event_id"`
	OldWristbandID int       `db:"old_wristband_id" json:"old_wristband_id"`
	BalanceCents   int64     `db:"balance_cents" json:"balance_cents"`
	OperatorID     int       `db:"operator_id" json:"operator_id"`
	DeviceID       *int      `db:"device_id" json:"device_id,omitempty"`
	Reason         string    `db:"reason" json:"reason"`
	Status         string    `db:"status" json:"status"`
	NewWristbandID *int      `db:"new_wristband_id" json:"new_wristband_id,omitempty"`
	NewTagUID      *string   `db:"new_tag_uid" json:"new_tag_uid,omitempty"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
