package wristband

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, eventID uuid.UUID, uid string) (*Wristband, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, uid string) (*Wristband, error)
	GetByID(ctx context.Context, id int) (*Wristband, error)
	GetByUID(ctx context.Context, eventID uuid.UUID, uid string) (*Wristband, error)
	GetByUIDForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, uid string) (*Wristband, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int) (*Wristband, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Wristband, error)
	// AdoptCounter moves the counter forward only; a racing adopt that
	// already advanced further wins and this call is a no-op.
	AdoptCounter(ctx context.Context, tx *sqlx.Tx, id int, newCtr uint32) error
	SetCounter(ctx context.Context, tx *sqlx.Tx, id int, ctr uint32) error
	SetStatus(ctx context.Context, tx *sqlx.Tx, id int, status string) error

	CreateReplaceSession(ctx context.Context, s *ReplaceSession) (*ReplaceSession, error)
	GetReplaceSession(ctx context.Context, id int) (*ReplaceSession, error)
	CompleteReplaceSession(ctx context.Context, tx *sqlx.Tx, id, newWristbandID int, newTagUID string) error
	ExpireStaleReplaceSessions(ctx context.Context, now time.Time) (int64, error)
}
