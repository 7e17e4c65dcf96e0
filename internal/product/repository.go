package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrProductNotFound = errors.New("product not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, eventID uuid.UUID, boothID *int, name string, priceCents int64) (*Product, error) {
	p := &Product{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO products (event_id, booth_id, name, price_cents, active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING id, event_id, booth_id, name, price_cents, active, created_at`,
		eventID, boothID, name, priceCents,
	).StructScan(p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) GetByIDs(ctx context.Context, eventID uuid.UUID, ids []int) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}

	var products []Product
	err := r.db.SelectContext(ctx, &products,
		`SELECT id, event_id, booth_id, name, price_cents, active, created_at
		 FROM products
		 WHERE event_id = $1 AND id = ANY($2)`,
		eventID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Product, error) {
	var products []Product
	err := r.db.SelectContext(ctx, &products,
		`SELECT id, event_id, booth_id, name, price_cents, active, created_at
		 FROM products
		 WHERE event_id = $1
		 ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) SetActive(ctx context.Context, id int, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}
