package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, eventID uuid.UUID, wristbandID int) (*Wallet, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, wristbandID int) (*Wallet, error)
	GetByWristband(ctx context.Context, eventID uuid.UUID, wristbandID int) (*Wallet, error)
	GetByWristbandForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, wristbandID int) (*Wallet, error)
	SetBalance(ctx context.Context, tx *sqlx.Tx, id int, balanceCents int64) error
}
