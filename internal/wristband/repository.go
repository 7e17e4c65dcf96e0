package wristband

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrWristbandNotFound      = errors.New("wristband not found")
	ErrReplaceSessionNotFound = errors.New("replace session not found")
)

const wristbandColumns = `id, event_id, uid, tag_id, counter, status, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func newTagID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (r *repository) Create(ctx context.Context, eventID uuid.UUID, uid string) (*Wristband, error) {
	return create(ctx, r.db, eventID, uid)
}

func (r *repository) CreateTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, uid string) (*Wristband, error) {
	return create(ctx, tx, eventID, uid)
}

func create(ctx context.Context, q sqlx.QueryerContext, eventID uuid.UUID, uid string) (*Wristband, error) {
	tagID, err := newTagID()
	if err != nil {
		return nil, err
	}

	w := &Wristband{}
	err = sqlx.GetContext(ctx, q, w,
		`INSERT INTO wristbands (event_id, uid, tag_id, counter, status)
		 VALUES ($1, $2, $3, 0, $4)
		 RETURNING `+wristbandColumns,
		eventID, strings.ToLower(uid), tagID, StatusActive)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Wristband, error) {
	w := &Wristband{}
	err := r.db.GetContext(ctx, w,
		`SELECT `+wristbandColumns+` FROM wristbands WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWristbandNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) GetByUID(ctx context.Context, eventID uuid.UUID, uid string) (*Wristband, error) {
	w := &Wristband{}
	err := r.db.GetContext(ctx, w,
		`SELECT `+wristbandColumns+` FROM wristbands WHERE event_id = $1 AND uid = $2`,
		eventID, strings.ToLower(uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWristbandNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) GetByUIDForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, uid string) (*Wristband, error) {
	w := &Wristband{}
	err := tx.GetContext(ctx, w,
		`SELECT `+wristbandColumns+` FROM wristbands WHERE event_id = $1 AND uid = $2 FOR UPDATE`,
		eventID, strings.ToLower(uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWristbandNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int) (*Wristband, error) {
	w := &Wristband{}
	err := tx.GetContext(ctx, w,
		`SELECT `+wristbandColumns+` FROM wristbands WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWristbandNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Wristband, error) {
	var bands []Wristband
	err := r.db.SelectContext(ctx, &bands,
		`SELECT `+wristbandColumns+` FROM wristbands WHERE event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	return bands, nil
}

func (r *repository) AdoptCounter(ctx context.Context, tx *sqlx.Tx, id int, newCtr uint32) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wristbands SET counter = $1 WHERE id = $2 AND counter < $1`,
		int64(newCtr), id)
	return err
}

func (r *repository) SetCounter(ctx context.Context, tx *sqlx.Tx, id int, ctr uint32) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE wristbands SET counter = $1 WHERE id = $2`, int64(ctr), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWristbandNotFound
	}
	return nil
}

func (r *repository) SetStatus(ctx context.Context, tx *sqlx.Tx, id int, status string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE wristbands SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWristbandNotFound
	}
	return nil
}

const replaceSessionColumns = `id, event_id, old_wristband_id, balance_cents, operator_id, device_id, reason, status, new_wristband_id, new_tag_uid, expires_at, created_at`

func (r *repository) CreateReplaceSession(ctx context.Context, s *ReplaceSession) (*ReplaceSession, error) {
	out := &ReplaceSession{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO replace_sessions (event_id, old_wristband_id, balance_cents, operator_id, device_id, reason, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+replaceSessionColumns,
		s.EventID, s.OldWristbandID, s.BalanceCents, s.OperatorID, s.DeviceID, s.Reason, ReplaceStatusPending, s.ExpiresAt,
	).StructScan(out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) GetReplaceSession(ctx context.Context, id int) (*ReplaceSession, error) {
	s := &ReplaceSession{}
	err := r.db.GetContext(ctx, s,
		`SELECT `+replaceSessionColumns+` FROM replace_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReplaceSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repository) CompleteReplaceSession(ctx context.Context, tx *sqlx.Tx, id, newWristbandID int, newTagUID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE replace_sessions
		 SET status = $1, new_wristband_id = $2, new_tag_uid = $3
		 WHERE id = $4 AND status = $5`,
		ReplaceStatusDone, newWristbandID, strings.ToLower(newTagUID), id, ReplaceStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrReplaceSessionNotFound
	}
	return nil
}

func (r *repository) ExpireStaleReplaceSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM replace_sessions WHERE status = $1 AND expires_at < $2`,
		ReplaceStatusPending, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
