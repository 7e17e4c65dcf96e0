package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// Code is the stable machine-readable failure code handed to devices
// and the admin UI.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeEventClosed          Code = "EVENT_CLOSED"
	CodeWristbandBlocked     Code = "WRISTBAND_BLOCKED"
	CodeWristbandInvalidated Code = "WRISTBAND_INVALIDATED"
	CodeTagMismatch          Code = "TAG_MISMATCH"
	CodeInvalidSignature     Code = "INVALID_SIGNATURE"
	CodeCtrReplay            Code = "CTR_REPLAY"
	CodeCtrForwardJump       Code = "CTR_FORWARD_JUMP"
	CodeCtrResyncDoneRetry   Code = "CTR_RESYNC_DONE_RETRY"
	CodeTxConflict           Code = "TX_CONFLICT"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeForbidden            Code = "FORBIDDEN"
	CodeBoothNotAssigned     Code = "BOOTH_NOT_ASSIGNED"
	CodeReplaceRequired      Code = "WRISTBAND_REPLACE_REQUIRED"
)

// Error is a protocol failure. Data carries extra fields some codes
// need, e.g. WRISTBAND_REPLACE_REQUIRED ships the counter gap and
// balance so the operator UI can continue without another round trip.
type Error struct {
	Code    Code
	Status  int
	Message string
	Data    map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func errNotFound(what string) *Error {
	return newError(CodeNotFound, http.StatusNotFound, what+" not found")
}

func errInvalid(message string) *Error {
	return newError(CodeInvalidRequest, http.StatusBadRequest, message)
}

func errConflict(message string) *Error {
	return newError(CodeTxConflict, http.StatusConflict, message)
}

// CodeOf extracts the protocol code from err, or "" for plain errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError returns the typed protocol error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// isUniqueViolation reports whether err is a Postgres duplicate-key
// error, which is how a lost idempotency race surfaces.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
