// Package engine implements the wristband transaction protocol: tag
// request authentication, idempotent execution of value-transferring
// operations, and the administrative recovery flows.
package engine

import (
	"context"
	"net/http"
	"time"

	"bandpay/internal/device"
	"bandpay/internal/event"
	"bandpay/internal/logger"
	"bandpay/internal/metrics"
	"bandpay/internal/notify"
	"bandpay/internal/product"
	"bandpay/internal/tagsig"
	"bandpay/internal/transaction"
	"bandpay/internal/wallet"
	"bandpay/internal/wristband"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Service struct {
	db         *sqlx.DB
	events     event.Repository
	wristbands wristband.Repository
	wallets    wallet.Repository
	txs        transaction.Repository
	products   product.Repository
	notifier   notify.Notifier

	pendingTTL time.Duration
	replaceTTL time.Duration
	maxCtrJump uint32
	now        func() time.Time
}

func NewService(
	db *sqlx.DB,
	events event.Repository,
	wristbands wristband.Repository,
	wallets wallet.Repository,
	txs transaction.Repository,
	products product.Repository,
	notifier notify.Notifier,
	pendingTTL time.Duration,
	replaceTTL time.Duration,
	maxCtrJump uint32,
) *Service {
	return &Service{
		db:         db,
		events:     events,
		wristbands: wristbands,
		wallets:    wallets,
		txs:        txs,
		products:   products,
		notifier:   notifier,
		pendingTTL: pendingTTL,
		replaceTTL: replaceTTL,
		maxCtrJump: maxCtrJump,
		now:        time.Now,
	}
}

// TagRequest is the authenticated part of every device-originated
// operation.
type TagRequest struct {
	TransactionID string
	EventID       uuid.UUID
	UIDHex        string
	TagIDHex      string
	Ctr           uint32
	SigHex        string
}

type TopUpRequest struct {
	TagRequest
	AmountCents int64
	Device      *device.Device
}

type BalanceCheckRequest struct {
	TagRequest
	Device *device.Device
}

type ChargeItem struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type ChargePrepareRequest struct {
	TagRequest
	Items  []ChargeItem
	Device *device.Device
}

func (s *Service) TopUp(ctx context.Context, req TopUpRequest) (*transaction.Transaction, error) {
	if req.AmountCents <= 0 {
		return nil, errInvalid("amount_cents must be positive")
	}

	payload, err := canonicalTagPayload("topup", req.TagRequest, map[string]interface{}{
		"amount_cents": req.AmountCents,
	})
	if err != nil {
		return nil, err
	}

	if stored, err := s.checkIdempotency(ctx, req.EventID, req.TransactionID, payload, false); stored != nil || err != nil {
		return stored, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ac, err := s.authenticate(ctx, tx, req.TagRequest)
	if err != nil {
		return nil, s.finishAuthFailure(ctx, tx, transaction.TypeTopUp, payload, req.TagRequest, err)
	}

	newBalance := ac.Wallet.BalanceCents + req.AmountCents
	if err := s.wallets.SetBalance(ctx, tx, ac.Wallet.ID, newBalance); err != nil {
		return nil, err
	}

	t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        req.TransactionID,
		Type:        transaction.TypeTopUp,
		Status:      transaction.StatusApproved,
		AmountCents: req.AmountCents,
		WristbandID: &ac.Band.ID,
		DeviceID:    deviceID(req.Device),
		RequestJSON: payload,
		ResultJSON: transaction.MustEncode(transaction.TopUpResult{
			Status:       transaction.StatusApproved,
			BalanceCents: newBalance,
		}),
	})
	if err != nil {
		if isUniqueViolation(err) {
			tx.Rollback()
			return s.replayExisting(ctx, req.EventID, req.TransactionID, payload)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.TopUpsTotal.Inc()
	logger.Info("top-up approved",
		"event_id", req.EventID, "wristband_id", ac.Band.ID, "amount_cents", req.AmountCents)
	return t, nil
}

func (s *Service) BalanceCheck(ctx context.Context, req BalanceCheckRequest) (*transaction.Transaction, error) {
	payload, err := canonicalTagPayload("balance_check", req.TagRequest, nil)
	if err != nil {
		return nil, err
	}

	if stored, err := s.checkIdempotency(ctx, req.EventID, req.TransactionID, payload, false); stored != nil || err != nil {
		return stored, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ac, err := s.authenticate(ctx, tx, req.TagRequest)
	if err != nil {
		return nil, s.finishAuthFailure(ctx, tx, transaction.TypeBalanceCheck, payload, req.TagRequest, err)
	}

	t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        req.TransactionID,
		Type:        transaction.TypeBalanceCheck,
		Status:      transaction.StatusApproved,
		AmountCents: 0,
		WristbandID: &ac.Band.ID,
		DeviceID:    deviceID(req.Device),
		RequestJSON: payload,
		ResultJSON: transaction.MustEncode(transaction.BalanceCheckResult{
			Status:       transaction.StatusApproved,
			BalanceCents: ac.Wallet.BalanceCents,
		}),
	})
	if err != nil {
		if isUniqueViolation(err) {
			tx.Rollback()
			return s.replayExisting(ctx, req.EventID, req.TransactionID, payload)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return t, nil
}

func (s *Service) ChargePrepare(ctx context.Context, req ChargePrepareRequest) (*transaction.Transaction, error) {
	if len(req.Items) == 0 {
		return nil, errInvalid("at least one item is required")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, errInvalid("item quantity must be positive")
		}
	}

	payload, err := canonicalTagPayload("charge", req.TagRequest, map[string]interface{}{
		"items": req.Items,
	})
	if err != nil {
		return nil, err
	}

	if stored, err := s.checkIdempotency(ctx, req.EventID, req.TransactionID, payload, true); stored != nil || err != nil {
		return stored, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ac, err := s.authenticate(ctx, tx, req.TagRequest)
	if err != nil {
		return nil, s.finishAuthFailure(ctx, tx, transaction.TypeCharge, payload, req.TagRequest, err)
	}

	if req.Device == nil || req.Device.Mode != device.ModeCharge {
		return nil, newError(CodeForbidden, http.StatusForbidden, "device is not in charge mode")
	}
	if req.Device.BoothID == nil {
		return nil, newError(CodeBoothNotAssigned, http.StatusForbidden, "device has no assigned booth")
	}

	items, total, err := s.priceItems(ctx, req.EventID, req.Device.BoothID, req.Items)
	if err != nil {
		return nil, err
	}

	if ac.Wallet.BalanceCents < total {
		t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
			EventID:     req.EventID,
			TxID:        req.TransactionID,
			Type:        transaction.TypeCharge,
			Status:      transaction.StatusDeclined,
			AmountCents: total,
			WristbandID: &ac.Band.ID,
			DeviceID:    deviceID(req.Device),
			RequestJSON: payload,
			ResultJSON: transaction.MustEncode(transaction.DeclinedResult{
				Status: transaction.StatusDeclined,
				Code:   string(CodeInsufficientFunds),
				Reason: "insufficient funds at prepare",
			}),
		})
		if err != nil {
			if isUniqueViolation(err) {
				tx.Rollback()
				return s.replayExisting(ctx, req.EventID, req.TransactionID, payload)
			}
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		metrics.RecordDecline(string(CodeInsufficientFunds))
		return t, nil
	}

	ctrNew := ac.Band.Counter + 1
	msg, err := tagsig.Message(ac.Band.UID, ac.Band.TagID, ctrNew, req.EventID)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.pendingTTL).UTC()

	t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        req.TransactionID,
		Type:        transaction.TypeCharge,
		Status:      transaction.StatusPending,
		AmountCents: total,
		WristbandID: &ac.Band.ID,
		DeviceID:    deviceID(req.Device),
		RequestJSON: payload,
		ResultJSON: transaction.MustEncode(transaction.ChargePrepareResult{
			Status:     transaction.StatusPending,
			TotalCents: total,
			CtrNew:     ctrNew,
			SigNewHex:  tagsig.SignHex(ac.Event.Secret(), msg),
			ExpiresAt:  expiresAt,
			Items:      items,
		}),
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		if isUniqueViolation(err) {
			tx.Rollback()
			return s.replayExisting(ctx, req.EventID, req.TransactionID, payload)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger.Info("charge prepared",
		"event_id", req.EventID, "tx_id", req.TransactionID,
		"total_cents", total, "ctr_new", ctrNew)
	return t, nil
}

func (s *Service) ChargeCommit(ctx context.Context, eventID uuid.UUID, txID string) (*transaction.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := s.txs.GetByEventAndTxIDForUpdate(ctx, tx, eventID, txID)
	if err != nil {
		if err == transaction.ErrTransactionNotFound {
			return nil, errConflict("no prepared transaction with this id")
		}
		return nil, err
	}

	// Retried commits see the terminal row and replay it untouched.
	if t.Terminal() {
		return t, nil
	}
	if t.Type != transaction.TypeCharge {
		return nil, errConflict("transaction is not a charge")
	}

	if t.ExpiresAt != nil && s.now().After(*t.ExpiresAt) {
		return s.declineCommit(ctx, tx, t, CodeTxConflict, "prepare expired")
	}

	prep, err := transaction.DecodePrepareResult(t)
	if err != nil {
		return nil, err
	}

	band, err := s.wristbands.GetByIDForUpdate(ctx, tx, *t.WristbandID)
	if err != nil {
		return nil, err
	}
	if band.Status == wristband.StatusInvalidated {
		// The pending row is left for the expiry sweeper.
		return nil, newError(CodeWristbandInvalidated, http.StatusConflict, "wristband was invalidated after prepare")
	}

	// A resync between prepare and commit puts the server counter at or
	// past the one handed out at prepare. Committing would move the
	// counter backwards and re-open the skipped range to replays, so
	// the device has to re-prepare with fresh tag state.
	if band.Counter >= prep.CtrNew {
		return s.declineCommit(ctx, tx, t, CodeTxConflict, "wristband counter advanced since prepare")
	}

	w, err := s.wallets.GetByWristbandForUpdate(ctx, tx, eventID, band.ID)
	if err != nil {
		return nil, err
	}

	if w.BalanceCents < t.AmountCents {
		return s.declineCommit(ctx, tx, t, CodeInsufficientFunds, "balance dropped since prepare")
	}

	newBalance := w.BalanceCents - t.AmountCents
	if err := s.wallets.SetBalance(ctx, tx, w.ID, newBalance); err != nil {
		return nil, err
	}
	if err := s.wristbands.SetCounter(ctx, tx, band.ID, prep.CtrNew); err != nil {
		return nil, err
	}

	// The count guard keeps a twice-arriving commit from duplicating
	// line items.
	count, err := s.txs.CountItems(ctx, tx, t.ID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		items := make([]transaction.Item, 0, len(prep.Items))
		for _, pi := range prep.Items {
			items = append(items, transaction.Item{
				ProductID:      pi.ProductID,
				BoothID:        pi.BoothID,
				Quantity:       pi.Quantity,
				UnitPriceCents: pi.UnitPriceCents,
				LineTotalCents: pi.LineTotalCents,
			})
		}
		if err := s.txs.InsertItems(ctx, tx, t.ID, items); err != nil {
			return nil, err
		}
	}

	resultJSON := transaction.MustEncode(transaction.ChargeCommitResult{
		Status:       transaction.StatusApproved,
		TotalCents:   t.AmountCents,
		BalanceCents: newBalance,
		Ctr:          prep.CtrNew,
	})
	if err := s.txs.MarkTerminal(ctx, tx, t.ID, transaction.StatusApproved, resultJSON); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	t.Status = transaction.StatusApproved
	t.ResultJSON = resultJSON

	metrics.RecordCharge(transaction.StatusApproved)
	logger.Info("charge committed",
		"event_id", eventID, "tx_id", txID,
		"total_cents", t.AmountCents, "ctr", prep.CtrNew)
	return t, nil
}

// declineCommit marks a pending charge declined and commits just that.
func (s *Service) declineCommit(ctx context.Context, tx *sqlx.Tx, t *transaction.Transaction, code Code, reason string) (*transaction.Transaction, error) {
	resultJSON := transaction.MustEncode(transaction.DeclinedResult{
		Status: transaction.StatusDeclined,
		Code:   string(code),
		Reason: reason,
	})
	if err := s.txs.MarkTerminal(ctx, tx, t.ID, transaction.StatusDeclined, resultJSON); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	t.Status = transaction.StatusDeclined
	t.ResultJSON = resultJSON

	metrics.RecordCharge(transaction.StatusDeclined)
	metrics.RecordDecline(string(code))
	return t, nil
}

type RefundRequest struct {
	EventID    uuid.UUID
	ChargeTxID string
	OperatorID int
}

// Refund reverses an approved charge. It credits the wallet and links
// a refund row to the original; the wristband counter is untouched.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*transaction.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ev, err := s.events.GetByIDTx(ctx, tx, req.EventID)
	if err != nil {
		if err == event.ErrEventNotFound {
			return nil, errNotFound("event")
		}
		return nil, err
	}
	if ev.Status != event.StatusOpen {
		return nil, newError(CodeEventClosed, http.StatusConflict, "event is closed")
	}

	orig, err := s.txs.GetByEventAndTxIDForUpdate(ctx, tx, req.EventID, req.ChargeTxID)
	if err != nil {
		if err == transaction.ErrTransactionNotFound {
			return nil, errNotFound("transaction")
		}
		return nil, err
	}

	if orig.Type != transaction.TypeCharge || orig.Status != transaction.StatusApproved {
		return nil, errConflict("only approved charges can be refunded")
	}

	refunded, err := s.txs.HasRefundFor(ctx, tx, req.EventID, orig.TxID)
	if err != nil {
		return nil, err
	}
	if refunded {
		return nil, errConflict("charge already refunded")
	}

	w, err := s.wallets.GetByWristbandForUpdate(ctx, tx, req.EventID, *orig.WristbandID)
	if err != nil {
		return nil, err
	}

	newBalance := w.BalanceCents + orig.AmountCents
	if err := s.wallets.SetBalance(ctx, tx, w.ID, newBalance); err != nil {
		return nil, err
	}

	t, err := s.txs.Insert(ctx, tx, &transaction.Transaction{
		EventID:     req.EventID,
		TxID:        uuid.NewString(),
		Type:        transaction.TypeRefund,
		Status:      transaction.StatusApproved,
		AmountCents: orig.AmountCents,
		WristbandID: orig.WristbandID,
		OperatorID:  &req.OperatorID,
		RefTxID:     &orig.TxID,
		RequestJSON: "{}",
		ResultJSON: transaction.MustEncode(transaction.RefundResult{
			Status:       transaction.StatusApproved,
			AmountCents:  orig.AmountCents,
			BalanceCents: newBalance,
			RefundsTxID:  orig.TxID,
		}),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RefundsTotal.Inc()
	logger.Info("charge refunded",
		"event_id", req.EventID, "charge_tx_id", req.ChargeTxID, "amount_cents", orig.AmountCents)
	return t, nil
}

func (s *Service) priceItems(ctx context.Context, eventID uuid.UUID, boothID *int, reqItems []ChargeItem) ([]transaction.PrepareItem, int64, error) {
	ids := make([]int, 0, len(reqItems))
	for _, item := range reqItems {
		ids = append(ids, item.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, eventID, ids)
	if err != nil {
		return nil, 0, err
	}

	byID := make(map[int]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]transaction.PrepareItem, 0, len(reqItems))
	var total int64
	for _, item := range reqItems {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, 0, errNotFound("product")
		}
		if !p.Active {
			return nil, 0, errInvalid("product is not for sale")
		}

		lineTotal := p.PriceCents * int64(item.Quantity)
		items = append(items, transaction.PrepareItem{
			ProductID:      p.ID,
			BoothID:        boothID,
			Quantity:       item.Quantity,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: lineTotal,
		})
		total += lineTotal
	}

	return items, total, nil
}

func deviceID(d *device.Device) *int {
	if d == nil {
		return nil
	}
	return &d.ID
}
