package event

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Event is a time-bounded activity. Its secret derives every wristband
// signature issued under it.
type Event struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	SecretHex string    `db:"secret_hex" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Secret returns the raw secret bytes.
func (e *Event) Secret() []byte {
	b, err := hex.DecodeString(e.SecretHex)
	if err != nil {
		return nil
	}
	return b
}
