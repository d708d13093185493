// Package signature implements the WeChat callback signature scheme.
//
// This is NOT an HMAC. The platform signs requests by sorting the shared
// token, timestamp, nonce and (optionally) the encrypted payload
// lexicographically, concatenating them with no separator, and taking the
// SHA-1 hex digest. Interoperability requires replicating that order
// exactly, including the empty payload for header-only verification.
package signature

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidSignature is returned when a header or payload signature does
// not match the recomputed value.
var ErrInvalidSignature = errors.New("invalid signature")

// Params carries the verification parameters the platform attaches to every
// callback request. MsgSignature and EncryptType are empty when the account
// is configured in plaintext mode.
type Params struct {
	Signature    string
	Timestamp    int64
	Nonce        string
	MsgSignature string
	EncryptType  string
}

// Compute returns the signature over the four inputs. The inputs are sorted
// here, so callers may pass them in any order-insensitive fashion; payload
// is the empty string for header signatures.
func Compute(token string, timestamp int64, nonce, payload string) string {
	parts := []string{token, strconv.FormatInt(timestamp, 10), nonce, payload}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// VerifyHeader checks the request-level signature, which covers no payload.
func VerifyHeader(token string, p Params) error {
	return compare(p.Signature, Compute(token, p.Timestamp, p.Nonce, ""))
}

// VerifyPayload checks the message signature over the encrypted payload.
// A request without a message signature (plaintext mode) passes trivially.
func VerifyPayload(token string, p Params, payload string) error {
	if p.MsgSignature == "" {
		return nil
	}
	return compare(p.MsgSignature, Compute(token, p.Timestamp, p.Nonce, payload))
}

func compare(got, want string) error {
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
