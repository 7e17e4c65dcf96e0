package transaction

import (
	"encoding/json"
	"time"
)

// Result payloads are a tagged union keyed by the transaction type;
// every variant carries a status and, when declined, a machine code.

type TopUpResult struct {
	Status       string `json:"status"`
	BalanceCents int64  `json:"balance_cents"`
}

type BalanceCheckResult struct {
	Status       string `json:"status"`
	BalanceCents int64  `json:"balance_cents"`
}

// PrepareItem snapshots one priced line at charge prepare so commit
// can recreate it without touching the catalog again.
type PrepareItem struct {
	ProductID      int   `json:"product_id"`
	BoothID        *int  `json:"booth_id,omitempty"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	LineTotalCents int64 `json:"line_total_cents"`
}

type ChargePrepareResult struct {
	Status     string        `json:"status"`
	TotalCents int64         `json:"total_cents"`
	CtrNew     uint32        `json:"ctr_new"`
	SigNewHex  string        `json:"sig_new_hex"`
	ExpiresAt  time.Time     `json:"expires_at"`
	Items      []PrepareItem `json:"items"`
}

type ChargeCommitResult struct {
	Status       string `json:"status"`
	TotalCents   int64  `json:"total_cents"`
	BalanceCents int64  `json:"balance_cents"`
	Ctr          uint32 `json:"ctr"`
}

type RefundResult struct {
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	BalanceCents int64  `json:"balance_cents"`
	RefundsTxID  string `json:"refunds_tx_id"`
}

type ResyncResult struct {
	Status  string `json:"status"`
	FromCtr uint32 `json:"from_ctr"`
	ToCtr   uint32 `json:"to_ctr"`
}

type InvalidateResult struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type ReplaceResult struct {
	Status           string `json:"status"`
	FromWristbandID  int    `json:"from_wristband_id"`
	ToWristbandID    int    `json:"to_wristband_id"`
	TransferredCents int64  `json:"transferred_cents"`
}

// DeclinedResult is shared by every operation that terminates in a
// decline; Code is the stable machine-readable reason.
type DeclinedResult struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

func MustEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// All result variants are plain data; marshal cannot fail.
		panic(err)
	}
	return string(b)
}

func DecodePrepareResult(t *Transaction) (*ChargePrepareResult, error) {
	var r ChargePrepareResult
	if err := json.Unmarshal([]byte(t.ResultJSON), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func DecodeDeclinedResult(t *Transaction) (*DeclinedResult, error) {
	var r DeclinedResult
	if err := json.Unmarshal([]byte(t.ResultJSON), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
