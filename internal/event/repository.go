package event

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrEventNotFound = errors.New("event not found")

const secretLen = 32

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, name string) (*Event, error) {
	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	e := &Event{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO events (id, name, status, secret_hex)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, status, secret_hex, created_at`,
		uuid.New(), name, StatusOpen, hex.EncodeToString(secret),
	).StructScan(e)
	if err != nil {
		return nil, err
	}

	return e, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	e := &Event{}
	err := r.db.GetContext(ctx, e,
		`SELECT id, name, status, secret_hex, created_at FROM events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Event, error) {
	e := &Event{}
	err := tx.GetContext(ctx, e,
		`SELECT id, name, status, secret_hex, created_at FROM events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context) ([]Event, error) {
	var events []Event
	err := r.db.SelectContext(ctx, &events,
		`SELECT id, name, status, secret_hex, created_at FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) Close(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = $1 WHERE id = $2`, StatusClosed, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}
