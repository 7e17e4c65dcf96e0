package product

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID         int       `db:"id" json:"id"`
	EventID    uuid.UUID `db:"event_id" json:"event_id"`
	BoothID    *int      `db:"booth_id" json:"booth_id,omitempty"`
	Name       string    `db:"name" json:"name"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
