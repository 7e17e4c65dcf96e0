package transaction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrTransactionNotFound = errors.New("transaction not found")

const txColumns = `id, event_id, tx_id, type, status, amount_cents, wristband_id, device_id, operator_id, ref_tx_id, request_json, result_json, expires_at, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByEventAndTxID(ctx context.Context, eventID uuid.UUID, txID string) (*Transaction, error) {
	t := &Transaction{}
	err := r.db.GetContext(ctx, t,
		`SELECT `+txColumns+` FROM transactions WHERE event_id = $1 AND tx_id = $2`,
		eventID, txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repository) GetByEventAndTxIDForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, txID string) (*Transaction, error) {
	t := &Transaction{}
	err := tx.GetContext(ctx, t,
		`SELECT `+txColumns+` FROM transactions WHERE event_id = $1 AND tx_id = $2 FOR UPDATE`,
		eventID, txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

const insertQuery = `INSERT INTO transactions (event_id, tx_id, type, status, amount_cents, wristband_id, device_id, operator_id, ref_tx_id, request_json, result_json, expires_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	 RETURNING ` + txColumns

func (r *repository) Insert(ctx context.Context, tx *sqlx.Tx, t *Transaction) (*Transaction, error) {
	out := &Transaction{}
	err := tx.QueryRowxContext(ctx, insertQuery,
		t.EventID, t.TxID, t.Type, t.Status, t.AmountCents, t.WristbandID,
		t.DeviceID, t.OperatorID, t.RefTxID, t.RequestJSON, t.ResultJSON, t.ExpiresAt,
	).StructScan(out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) InsertIncident(ctx context.Context, t *Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (event_id, tx_id, type, status, amount_cents, wristband_id, device_id, operator_id, ref_tx_id, request_json, result_json, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (event_id, tx_id) DO NOTHING`,
		t.EventID, t.TxID, t.Type, t.Status, t.AmountCents, t.WristbandID,
		t.DeviceID, t.OperatorID, t.RefTxID, t.RequestJSON, t.ResultJSON, t.ExpiresAt)
	return err
}

func (r *repository) MarkTerminal(ctx context.Context, tx *sqlx.Tx, id int64, status, resultJSON string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = $1, result_json = $2 WHERE id = $3 AND status = $4`,
		status, resultJSON, id, StatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *repository) CountItems(ctx context.Context, tx *sqlx.Tx, transactionID int64) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM transaction_items WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) InsertItems(ctx context.Context, tx *sqlx.Tx, transactionID int64, items []Item) error {
	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_items (transaction_id, product_id, booth_id, quantity, unit_price_cents, line_total_cents)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			transactionID, item.ProductID, item.BoothID, item.Quantity, item.UnitPriceCents, item.LineTotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) GetItems(ctx context.Context, transactionID int64) ([]Item, error) {
	var items []Item
	err := r.db.SelectContext(ctx, &items,
		`SELECT id, transaction_id, product_id, booth_id, quantity, unit_price_cents, line_total_cents
		 FROM transaction_items WHERE transaction_id = $1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) HasRefundFor(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, txID string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE event_id = $1 AND ref_tx_id = $2 AND type = $3)`,
		eventID, txID, TypeRefund)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) ExpirePending(ctx context.Context, now time.Time, resultJSON string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET status = $1, result_json = $2
		 WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $4`,
		StatusDeclined, resultJSON, StatusPending, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var txs []Transaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT `+txColumns+` FROM transactions
		 WHERE event_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		eventID, limit, offset)
	if err != nil {
		return nil, err
	}
	return txs, nil
}
