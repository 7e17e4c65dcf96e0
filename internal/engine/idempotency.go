package engine

import (
	"context"
	"errors"

	"bandpay/internal/transaction"

	"github.com/google/uuid"
)

// canonicalTagPayload renders the client-meaningful fields of a tag
// request into the canonical string stored and compared for
// idempotency. Key order is total, so any retry of the same logical
// request produces the same string regardless of producer.
func canonicalTagPayload(op string, req TagRequest, extra map[string]interface{}) (string, error) {
	payload := map[string]interface{}{
		"op":       op,
		"tx_id":    req.TransactionID,
		"event_id": req.EventID.String(),
		"uid":      req.UIDHex,
		"tag_id":   req.TagIDHex,
		"ctr":      req.Ctr,
		"sig":      req.SigHex,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return transaction.CanonicalizeValue(payload)
}

// checkIdempotency resolves a client transaction id against history.
// Returns (stored, nil) when the identical request was already
// processed and its result must be replayed, (nil, nil) when the id is
// fresh, and an error when the id is being reused for a different
// payload.
//
// A PENDING row is only replayable for charge prepare, whose stored
// result already carries everything the device needs to proceed to
// commit; any other operation finding a pending row is an id clash.
func (s *Service) checkIdempotency(ctx context.Context, eventID uuid.UUID, txID, payload string, allowPending bool) (*transaction.Transaction, error) {
	existing, err := s.txs.GetByEventAndTxID(ctx, eventID, txID)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	stored, err := transaction.Canonicalize([]byte(existing.RequestJSON))
	if err != nil {
		// A row we cannot compare against is never silently replayed.
		return nil, errConflict("transaction id already used")
	}
	if stored != payload {
		return nil, errConflict("transaction id reused with a different payload")
	}

	if !existing.Terminal() && !allowPending {
		return nil, errConflict("transaction id already used by an in-flight charge")
	}

	return existing, nil
}

// replayExisting handles losing an insert race: the winner's row is
// fetched and treated exactly like an idempotent retry.
func (s *Service) replayExisting(ctx context.Context, eventID uuid.UUID, txID, payload string) (*transaction.Transaction, error) {
	existing, err := s.txs.GetByEventAndTxID(ctx, eventID, txID)
	if err != nil {
		return nil, err
	}

	stored, err := transaction.Canonicalize([]byte(existing.RequestJSON))
	if err != nil || stored != payload {
		return nil, errConflict("transaction id reused with a different payload")
	}

	return existing, nil
}
