package engine

import (
	"context"
	"errors"
	"net/http"

	"bandpay/internal/event"
	"bandpay/internal/logger"
	"bandpay/internal/metrics"
	"bandpay/internal/transaction"
	"bandpay/internal/wallet"
	"bandpay/internal/wristband"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ResyncRequest struct {
	EventID     uuid.UUID
	WristbandID int
	TargetCtr   uint32
	OperatorID  int
}

// Resync forces the server counter forward to match a tag that is
// ahead. A tag that is *behind* the server cannot be resynced; the
// caller gets WRISTBAND_REPLACE_REQUIRED with the state the operator
// UI needs to start a replacement instead.
func (s *Service) Resync(ctx context.Context, req ResyncRequest) (*transaction.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	band, err := s.wristbands.GetByIDForUpdate(ctx, tx, req.WristbandID)
	if err != nil {
		if errors.Is(err, wristband.ErrWristbandNotFound) {
			return nil, errNotFound("wristband")
		}
		return nil, err
	}
	if band.EventID != req.EventID {
		return nil, errNotFound("wristband")
	}

	if req.TargetCtr < band.Counter {
		var balanceCents int64
		if w, err := s.wallets.GetByWristband(ctx, req.EventID, band.ID); err == nil {
			balanceCents = w.BalanceCents
		}

		return nil, &Error{
			Code:    CodeReplaceRequired,
			Status:  http.StatusConflict,
			Message: "tag counter is behind the server; physical replacement required",
			Data: map[string]interface{}{
				"server_ctr":    band.Counter,
				"tag_ctr":       req.TargetCtr,
				"balance_cents": balanceCents,
			},
		}
	}

	if err := s.wristbands.SetCounter(ctx, tx, band.ID, req.TargetCtr); err != nil {
		return nil, err
	}

	t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        uuid.NewString(),
		Type:        transaction.TypeAdminResync,
		Status:      transaction.StatusApproved,
		WristbandID: &band.ID,
		OperatorID:  &req.OperatorID,
		RequestJSON: "{}",
		ResultJSON: transaction.MustEncode(transaction.ResyncResult{
			Status:  transaction.StatusApproved,
			FromCtr: band.Counter,
			ToCtr:   req.TargetCtr,
		}),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordResync("admin")
	logger.Info("wristband resynced",
		"wristband_id", band.ID, "from_ctr", band.Counter, "to_ctr", req.TargetCtr)
	return t, nil
}

type InvalidateRequest struct {
	EventID     uuid.UUID
	WristbandID int
	Reason      string
	OperatorID  int
}

// Invalidate disables a wristband. Calling it again only adds another
// audit row.
func (s *Service) Invalidate(ctx context.Context, req InvalidateRequest) (*transaction.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	band, err := s.wristbands.GetByIDForUpdate(ctx, tx, req.WristbandID)
	if err != nil {
		if errors.Is(err, wristband.ErrWristbandNotFound) {
			return nil, errNotFound("wristband")
		}
		return nil, err
	}
	if band.EventID != req.EventID {
		return nil, errNotFound("wristband")
	}

	if band.Status != wristband.StatusInvalidated {
		if err := s.wristbands.SetStatus(ctx, tx, band.ID, wristband.StatusInvalidated); err != nil {
			return nil, err
		}
	}

	t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        uuid.NewString(),
		Type:        transaction.TypeAdminInvalidate,
		Status:      transaction.StatusApproved,
		WristbandID: &band.ID,
		OperatorID:  &req.OperatorID,
		RequestJSON: "{}",
		ResultJSON: transaction.MustEncode(transaction.InvalidateResult{
			Status: transaction.StatusApproved,
			Reason: req.Reason,
		}),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger.Info("wristband invalidated", "wristband_id", band.ID, "reason", req.Reason)
	return t, nil
}

type ReplaceRequest struct {
	EventID        uuid.UUID
	OldWristbandID int
	// Exactly one of NewWristbandID / NewTagUID identifies the target;
	// an unknown uid is provisioned on the fly.
	NewWristbandID *int
	NewTagUID      *string
	Reason         string
	OperatorID     int
	SessionID      *int
}

// Replace migrates the whole balance of a failed wristband to a new
// physical tag and invalidates the old one, atomically.
func (s *Service) Replace(ctx context.Context, req ReplaceRequest) (*transaction.Transaction, error) {
	if (req.NewWristbandID == nil) == (req.NewTagUID == nil) {
		return nil, errInvalid("exactly one of new_wristband_id or new_tag_uid is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Replacement moves money, so the event gate applies like on any
	// other monetary operation.
	ev, err := s.events.GetByIDTx(ctx, tx, req.EventID)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			return nil, errNotFound("event")
		}
		return nil, err
	}
	if ev.Status != event.StatusOpen {
		return nil, newError(CodeEventClosed, http.StatusConflict, "event is closed")
	}

	oldBand, err := s.wristbands.GetByIDForUpdate(ctx, tx, req.OldWristbandID)
	if err != nil {
		if errors.Is(err, wristband.ErrWristbandNotFound) {
			return nil, errNotFound("wristband")
		}
		return nil, err
	}
	if oldBand.EventID != req.EventID {
		return nil, errNotFound("wristband")
	}

	oldWallet, err := s.wallets.GetByWristbandForUpdate(ctx, tx, req.EventID, oldBand.ID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, errNotFound("wallet")
		}
		return nil, err
	}

	newBand, err := s.resolveReplacement(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if newBand.ID == oldBand.ID {
		return nil, errInvalid("cannot replace a wristband with itself")
	}
	if newBand.Status != wristband.StatusActive {
		return nil, newError(CodeWristbandInvalidated, http.StatusConflict, "replacement wristband is not active")
	}

	newWallet, err := s.wallets.GetByWristbandForUpdate(ctx, tx, req.EventID, newBand.ID)
	if err != nil {
		if !errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, err
		}
		newWallet, err = s.wallets.CreateTx(ctx, tx, req.EventID, newBand.ID)
		if err != nil {
			return nil, err
		}
	}

	transferred := oldWallet.BalanceCents
	if err := s.wallets.SetBalance(ctx, tx, newWallet.ID, newWallet.BalanceCents+transferred); err != nil {
		return nil, err
	}
	if err := s.wallets.SetBalance(ctx, tx, oldWallet.ID, 0); err != nil {
		return nil, err
	}
	if err := s.wristbands.SetStatus(ctx, tx, oldBand.ID, wristband.StatusInvalidated); err != nil {
		return nil, err
	}

	t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        uuid.NewString(),
		Type:        transaction.TypeAdminReplace,
		Status:      transaction.StatusApproved,
		AmountCents: transferred,
		WristbandID: &oldBand.ID,
		OperatorID:  &req.OperatorID,
		RequestJSON: "{}",
		ResultJSON: transaction.MustEncode(transaction.ReplaceResult{
			Status:           transaction.StatusApproved,
			FromWristbandID:  oldBand.ID,
			ToWristbandID:    newBand.ID,
			TransferredCents: transferred,
		}),
	})
	if err != nil {
		return nil, err
	}

	if req.SessionID != nil {
		if err := s.wristbands.CompleteReplaceSession(ctx, tx, *req.SessionID, newBand.ID, newBand.UID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordResync("replace")
	logger.Info("wristband replaced",
		"from_wristband_id", oldBand.ID, "to_wristband_id", newBand.ID,
		"transferred_cents", transferred)
	return t, nil
}

func (s *Service) resolveReplacement(ctx context.Context, tx *sqlx.Tx, req ReplaceRequest) (*wristband.Wristband, error) {
	if req.NewWristbandID != nil {
		newBand, err := s.wristbands.GetByIDForUpdate(ctx, tx, *req.NewWristbandID)
		if err != nil {
			if errors.Is(err, wristband.ErrWristbandNotFound) {
				return nil, errNotFound("replacement wristband")
			}
			return nil, err
		}
		if newBand.EventID != req.EventID {
			return nil, errNotFound("replacement wristband")
		}
		return newBand, nil
	}

	newBand, err := s.wristbands.GetByUIDForUpdate(ctx, tx, req.EventID, *req.NewTagUID)
	if err == nil {
		return newBand, nil
	}
	if !errors.Is(err, wristband.ErrWristbandNotFound) {
		return nil, err
	}
	return s.wristbands.CreateTx(ctx, tx, req.EventID, *req.NewTagUID)
}

type StartReplaceRequest struct {
	EventID     uuid.UUID
	WristbandID int
	Reason      string
	OperatorID  int
	DeviceID    *int
}

func (s *Service) StartReplaceSession(ctx context.Context, req StartReplaceRequest) (*wristband.ReplaceSession, error) {
	band, err := s.wristbands.GetByID(ctx, req.WristbandID)
	if err != nil {
		if errors.Is(err, wristband.ErrWristbandNotFound) {
			return nil, errNotFound("wristband")
		}
		return nil, err
	}
	if band.EventID != req.EventID {
		return nil, errNotFound("wristband")
	}

	var balanceCents int64
	if w, err := s.wallets.GetByWristband(ctx, req.EventID, band.ID); err == nil {
		balanceCents = w.BalanceCents
	}

	return s.wristbands.CreateReplaceSession(ctx, &wristband.ReplaceSession{
		EventID:        req.EventID,
		OldWristbandID: band.ID,
		BalanceCents:   balanceCents,
		OperatorID:     req.OperatorID,
		DeviceID:       req.DeviceID,
		Reason:         req.Reason,
		ExpiresAt:      s.now().Add(s.replaceTTL).UTC(),
	})
}

func (s *Service) GetReplaceSession(ctx context.Context, id int) (*wristband.ReplaceSession, error) {
	sess, err := s.wristbands.GetReplaceSession(ctx, id)
	if err != nil {
		if errors.Is(err, wristband.ErrReplaceSessionNotFound) {
			return nil, errNotFound("replace session")
		}
		return nil, err
	}
	return sess, nil
}
