package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bandpay/internal/event"
	"bandpay/internal/metrics"
	"bandpay/internal/notify"
	"bandpay/internal/tagsig"
	"bandpay/internal/transaction"
	"bandpay/internal/wallet"
	"bandpay/internal/wristband"

	"github.com/jmoiron/sqlx"
)

// authContext is the validated state a tag operation runs against.
// Band and Wallet rows are locked by the surrounding transaction.
type authContext struct {
	Event  *event.Event
	Band   *wristband.Wristband
	Wallet *wallet.Wallet
}

// authenticate verifies a physical tag's request inside the caller's
// database transaction: event open, wristband active, tag identity
// matching, counter fresh, signature valid.
//
// One path mutates state: a forward-jumped counter whose signature
// verifies is adopted via AdoptCounter and the call fails with
// CTR_RESYNC_DONE_RETRY. The caller must COMMIT on that code so the
// adopt shares the transaction of the read that discovered it.
func (s *Service) authenticate(ctx context.Context, tx *sqlx.Tx, req TagRequest) (*authContext, error) {
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

	band, err := s.wristbands.GetByUIDForUpdate(ctx, tx, req.EventID, strings.ToLower(req.UIDHex))
	if err != nil {
		if errors.Is(err, wristband.ErrWristbandNotFound) {
			return nil, errNotFound("wristband")
		}
		return nil, err
	}
	switch band.Status {
	case wristband.StatusBlocked:
		return nil, newError(CodeWristbandBlocked, http.StatusConflict, "wristband is blocked")
	case wristband.StatusInvalidated:
		return nil, newError(CodeWristbandInvalidated, http.StatusConflict, "wristband is invalidated")
	}

	// Tag identity check is independent of the signature: a cloned uid
	// with a foreign tag id fails here even with a stolen signature.
	if band.TagID != strings.ToLower(req.TagIDHex) {
		return nil, newError(CodeTagMismatch, http.StatusConflict, "tag id does not match wristband")
	}

	switch wristband.ClassifyCounter(band.Counter, req.Ctr) {
	case wristband.CounterReplay:
		return nil, &Error{
			Code:    CodeCtrReplay,
			Status:  http.StatusConflict,
			Message: fmt.Sprintf("counter %d already consumed, stored counter is %d", req.Ctr, band.Counter),
			Data: map[string]interface{}{
				"server_ctr":   band.Counter,
				"tag_ctr":      req.Ctr,
				"wristband_id": band.ID,
			},
		}

	case wristband.CounterForwardJump:
		// The tag claims to be ahead. Trust it only if it can prove
		// possession of the secret for the future counter, and only
		// within the configured jump bound.
		ok, err := s.verifySignature(ev, band, req.Ctr, req.SigHex)
		if err != nil {
			return nil, err
		}
		if !ok || req.Ctr-band.Counter > s.maxCtrJump {
			s.notifier.Push(ctx, notify.Incident{
				EventID:     ev.ID.String(),
				WristbandID: band.ID,
				UID:         band.UID,
				Kind:        notify.KindForwardJumpDenied,
				Detail:      fmt.Sprintf("presented ctr %d, stored ctr %d", req.Ctr, band.Counter),
			})
			return nil, newError(CodeCtrForwardJump, http.StatusConflict, "untrusted counter jump")
		}

		if err := s.wristbands.AdoptCounter(ctx, tx, band.ID, req.Ctr); err != nil {
			return nil, err
		}
		metrics.RecordResync("forward_jump")
		return nil, &Error{
			Code:    CodeCtrResyncDoneRetry,
			Status:  http.StatusConflict,
			Message: "server counter adopted; retry the request",
			Data: map[string]interface{}{
				"server_ctr": req.Ctr,
				"retryable":  true,
			},
		}
	}

	ok, err := s.verifySignature(ev, band, req.Ctr, req.SigHex)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.notifier.Push(ctx, notify.Incident{
			EventID:     ev.ID.String(),
			WristbandID: band.ID,
			UID:         band.UID,
			Kind:        notify.KindInvalidSignature,
		})
		return nil, newError(CodeInvalidSignature, http.StatusUnauthorized, "signature does not verify")
	}

	w, err := s.wallets.GetByWristbandForUpdate(ctx, tx, req.EventID, band.ID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, errNotFound("wallet")
		}
		return nil, err
	}

	return &authContext{Event: ev, Band: band, Wallet: w}, nil
}

func (s *Service) verifySignature(ev *event.Event, band *wristband.Wristband, ctr uint32, sigHex string) (bool, error) {
	msg, err := tagsig.Message(band.UID, band.TagID, ctr, ev.ID)
	if err != nil {
		return false, errInvalid("malformed tag identity")
	}
	expected := tagsig.SignHex(ev.Secret(), msg)
	return tagsig.Verify(expected, sigHex), nil
}

// finishAuthFailure resolves an authentication error against the open
// transaction: the forward-jump resync commits its counter adopt, a
// replay rolls back and then writes its incident record, everything
// else just rolls back.
func (s *Service) finishAuthFailure(ctx context.Context, tx *sqlx.Tx, txType, payload string, req TagRequest, authErr error) error {
	switch CodeOf(authErr) {
	case CodeCtrResyncDoneRetry:
		if err := tx.Commit(); err != nil {
			return err
		}
		return authErr

	case CodeCtrReplay:
		tx.Rollback()
		s.recordReplayIncident(ctx, txType, payload, req, authErr)
		return authErr

	default:
		return authErr
	}
}

// recordReplayIncident persists the declined audit row a counter
// replay leaves behind. This is the one authentication failure that
// writes durable state; it runs outside the rolled-back transaction.
func (s *Service) recordReplayIncident(ctx context.Context, txType, payload string, req TagRequest, authErr error) {
	e, _ := AsError(authErr)

	var bandID *int
	if id, ok := e.Data["wristband_id"].(int); ok {
		bandID = &id
	}

	if err := s.txs.InsertIncident(ctx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        req.TransactionID,
		Type:        txType,
		Status:      transaction.StatusDeclined,
		WristbandID: bandID,
		RequestJSON: payload,
		ResultJSON: transaction.MustEncode(transaction.DeclinedResult{
			Status: transaction.StatusDeclined,
			Code:   string(CodeCtrReplay),
			Reason: e.Message,
		}),
	}); err != nil {
		// Incident logging is best effort; the rejection stands.
		return
	}

	s.notifier.Push(ctx, notify.Incident{
		EventID: req.EventID.String(),
		UID:     strings.ToLower(req.UIDHex),
		Kind:    notify.KindCtrReplay,
		Detail:  e.Message,
	})
	metrics.ReplayIncidentsTotal.Inc()
}
