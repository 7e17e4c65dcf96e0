package event

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, name string) (*Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Event, error)
	List(ctx context.Context) ([]Event, error)
	Close(ctx context.Context, id uuid.UUID) error
}
