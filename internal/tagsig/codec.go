// Package tagsig implements the wristband request signature scheme:
// a truncated HMAC-SHA-256 over the tag identity and its rolling counter.
package tagsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	// SigLen is the truncated signature length in bytes.
	SigLen = 8

	// TagIDLen is the provisioned tag identity length in bytes.
	TagIDLen = 16
)

var (
	ErrBadUID   = errors.New("uid is not valid hex")
	ErrBadTagID = errors.New("tag id must be 16 bytes of hex")
)

// Message builds the byte string that gets signed: raw uid bytes,
// the 16-byte tag id, the counter as 4-byte big-endian and the raw
// 16 bytes of the event id. Fixed-width fields, no separators.
func Message(uidHex, tagIDHex string, ctr uint32, eventID uuid.UUID) ([]byte, error) {
	uid, err := hex.DecodeString(strings.ToLower(uidHex))
	if err != nil {
		return nil, ErrBadUID
	}

	tagID, err := hex.DecodeString(strings.ToLower(tagIDHex))
	if err != nil || len(tagID) != TagIDLen {
		return nil, ErrBadTagID
	}

	msg := make([]byte, 0, len(uid)+TagIDLen+4+16)
	msg = append(msg, uid...)
	msg = append(msg, tagID...)
	msg = binary.BigEndian.AppendUint32(msg, ctr)
	msg = append(msg, eventID[:]...)

	return msg, nil
}

// Sign computes HMAC-SHA-256 over msg and truncates to SigLen bytes.
func Sign(secret, msg []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return mac.Sum(nil)[:SigLen]
}

func SignHex(secret, msg []byte) string {
	return hex.EncodeToString(Sign(secret, msg))
}

// Verify compares two hex signatures in constant time. Anything that
// fails to decode, or differs in length, fails closed.
func Verify(expectedHex, presentedHex string) bool {
	expected, err := hex.DecodeString(strings.ToLower(expectedHex))
	if err != nil {
		return false
	}
	presented, err := hex.DecodeString(strings.ToLower(presentedHex))
	if err != nil {
		return false
	}
	if len(expected) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, presented) == 1
}

// SecretBytes normalizes a string secret. Valid even-length hex is
// decoded; anything else is used as raw UTF-8 bytes. Production event
// secrets are raw bytes and never pass through here; this path exists
// for human-entered secrets in provisioning utilities.
func SecretBytes(s string) []byte {
	if len(s)%2 == 0 {
		if b, err := hex.DecodeString(s); err == nil {
			return b
		}
	}
	return []byte(s)
}
