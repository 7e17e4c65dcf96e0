package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetByEventAndTxID(ctx context.Context, eventID uuid.UUID, txID string) (*Transaction, error)
	GetByEventAndTxIDForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, txID string) (*Transaction, error)
	Insert(ctx context.Context, tx *sqlx.Tx, t *Transaction) (*Transaction, error)
	// InsertIncident writes a declined audit row outside any caller
	// transaction; a concurrent duplicate is silently dropped.
	InsertIncident(ctx context.Context, t *Transaction) error
	MarkTerminal(ctx context.Context, tx *sqlx.Tx, id int64, status, resultJSON string) error
	CountItems(ctx context.Context, tx *sqlx.Tx, transactionID int64) (int, error)
	InsertItems(ctx context.Context, tx *sqlx.Tx, transactionID int64, items []Item) error
	GetItems(ctx context.Context, transactionID int64) ([]Item, error)
	HasRefundFor(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, txID string) (bool, error)
	ExpirePending(ctx context.Context, now time.Time, resultJSON string) (int64, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]Transaction, error)
}
