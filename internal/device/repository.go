package device

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrBoothNotFound  = errors.New("booth not found")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Register(ctx context.Context, eventID uuid.UUID, name, mode string) (*Device, error) {
	key := make([]byte, 24)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	d := &Device{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO devices (event_id, name, mode, api_key, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, event_id, name, mode, booth_id, api_key, status, created_at`,
		eventID, name, mode, hex.EncodeToString(key), StatusActive,
	).StructScan(d)
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Device, error) {
	d := &Device{}
	err := r.db.GetContext(ctx, d,
		`SELECT id, event_id, name, mode, booth_id, api_key, status, created_at
		 FROM devices WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repository) GetByAPIKey(ctx context.Context, apiKey string) (*Device, error) {
	d := &Device{}
	err := r.db.GetContext(ctx, d,
		`SELECT id, event_id, name, mode, booth_id, api_key, status, created_at
		 FROM devices WHERE api_key = $1`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repository) SetMode(ctx context.Context, id int, mode string) error {
	return r.update(ctx, `UPDATE devices SET mode = $1 WHERE id = $2`, mode, id)
}

func (r *repository) AssignBooth(ctx context.Context, id int, boothID int) error {
	return r.update(ctx, `UPDATE devices SET booth_id = $1 WHERE id = $2`, boothID, id)
}

func (r *repository) Disable(ctx context.Context, id int) error {
	return r.update(ctx, `UPDATE devices SET status = $1 WHERE id = $2`, StatusDisabled, id)
}

func (r *repository) update(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *repository) CreateBooth(ctx context.Context, eventID uuid.UUID, name string) (*Booth, error) {
	b := &Booth{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO booths (event_id, name)
		 VALUES ($1, $2)
		 RETURNING id, event_id, name, created_at`,
		eventID, name,
	).StructScan(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repository) ListBooths(ctx context.Context, eventID uuid.UUID) ([]Booth, error) {
	var booths []Booth
	err := r.db.SelectContext(ctx, &booths,
		`SELECT id, event_id, name, created_at FROM booths WHERE event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	return booths, nil
}
