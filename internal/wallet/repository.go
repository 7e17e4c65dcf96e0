package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrNegativeBalance     = errors.New("balance cannot go negative")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

const walletColumns = `id, event_id, wristband_id, balance_cents, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, eventID uuid.UUID, wristbandID int) (*Wallet, error) {
	return create(ctx, r.db, eventID, wristbandID)
}

func (r *repository) CreateTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, wristbandID int) (*Wallet, error) {
	return create(ctx, tx, eventID, wristbandID)
}

func create(ctx context.Context, q sqlx.QueryerContext, eventID uuid.UUID, wristbandID int) (*Wallet, error) {
	w := &Wallet{}
	err := sqlx.GetContext(ctx, q, w,
		`INSERT INTO wallets (event_id, wristband_id, balance_cents)
		 VALUES ($1, $2, 0)
		 RETURNING `+walletColumns,
		eventID, wristbandID)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) GetByWristband(ctx context.Context, eventID uuid.UUID, wristbandID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w,
		`SELECT `+walletColumns+` FROM wallets WHERE event_id = $1 AND wristband_id = $2`,
		eventID, wristbandID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) GetByWristbandForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, wristbandID int) (*Wallet, error) {
	w := &Wallet{}
	err := tx.GetContext(ctx, w,
		`SELECT `+walletColumns+` FROM wallets WHERE event_id = $1 AND wristband_id = $2 FOR UPDATE`,
		eventID, wristbandID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) SetBalance(ctx context.Context, tx *sqlx.Tx, id int, balanceCents int64) error {
	if balanceCents < 0 {
		return ErrNegativeBalance
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance_cents = $1, updated_at = NOW() WHERE id = $2`,
		balanceCents, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWalletNotFound
	}
	return nil
}
