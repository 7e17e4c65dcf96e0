package transaction

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeTopUp           = "topup"
	TypeBalanceCheck    = "balance_check"
	TypeCharge          = "charge"
	TypeRefund          = "refund"
	TypeAdminResync     = "admin_resync"
	TypeAdminInvalidate = "admin_invalidate"
	TypeAdminReplace    = "admin_replace"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDeclined = "declined"
)

// Transaction is the durable record of one operation attempt. The
// (event_id, tx_id) pair is the idempotency key; once approved or
// declined the row is terminal and its result is replayed verbatim.
type Transaction struct {
	ID          int64      `db:"id" json:"id"`
	EventID     uuid.UUID  `db:"event_id" json:"event_id"`
	TxID        string     `db:"tx_id" json:"tx_id"`
	Type        string     `db:"type" json:"type"`
	Status      string     `db:"status" json:"status"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	WristbandID *int       `db:"wristband_id" json:"wristband_id,omitempty"`
	DeviceID    *int       `db:"device_id" json:"device_id,omitempty"`
	OperatorID  *int       `db:"operator_id" json:"operator_id,omitempty"`
	RefTxID     *string    `db:"ref_tx_id" json:"ref_tx_id,omitempty"`
	RequestJSON string     `db:"request_json" json:"-"`
	ResultJSON  string     `db:"result_json" json:"result"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

func (t *Transaction) Terminal() bool {
	return t.Status == StatusApproved || t.Status == StatusDeclined
}

// Item is one purchased product line of an approved charge. Created
// exactly once at charge commit.
type Item struct {
	ID             int64 `db:"id" json:"id"`
	TransactionID  int64 `db:"transaction_id" json:"transaction_id"`
	ProductID      int   `db:"product_id" json:"product_id"`
	BoothID        *int  `db:"booth_id" json:"booth_id,omitempty"`
	Quantity       int   `db:"quantity" json:"quantity"`
	UnitPriceCents int64 `db:"unit_price_cents" json:"unit_price_cents"`
	LineTotalCents int64 `db:"line_total_cents" json:"line_total_cents"`
}
