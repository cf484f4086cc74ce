// Package token implements the signed routing token shared between the
// telephony webhook issuer and the relay. The token is an HMAC-SHA256 over
// "tenantID:callerID:timestamp", hex encoded, valid for 60 seconds of clock
// skew in either direction.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const maxClockSkew = 60 * time.Second

// ErrInvalidToken is the uniform rejection for every verification failure.
// Callers get no signal about which check failed.
var ErrInvalidToken = errors.New("invalid routing token")

// Verifier validates routing tokens against a shared secret
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier. An empty secret is allowed but rejects
// every token.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Identity is the call routing identity resolved from a verified token
type Identity struct {
	TenantID string
	CallerID string
}

// Verify checks the token for the given tenant, caller and issuance
// timestamp (unix seconds). callerID may be empty; everything else must be
// present. Returns the resolved identity or ErrInvalidToken.
func (v *Verifier) Verify(tok, tenantID, callerID, timestamp string) (Identity, error) {
	if len(v.secret) == 0 || tok == "" || tenantID == "" || timestamp == "" {
		return Identity{}, ErrInvalidToken
	}

	issuedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	skew := v.now().Sub(time.Unix(issuedAt, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxClockSkew {
		return Identity{}, ErrInvalidToken
	}

	expected := Sign(string(v.secret), tenantID, callerID, issuedAt)
	if !constantTimeEqual(tok, expected) {
		return Identity{}, ErrInvalidToken
	}

	return Identity{TenantID: tenantID, CallerID: callerID}, nil
}

// Sign computes the hex HMAC-SHA256 signature the issuer puts on the wire
func Sign(secret, tenantID, callerID string, issuedAt int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s:%d", tenantID, callerID, issuedAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEqual compares two strings without short-circuiting. Length is
// checked first; the byte loop XOR-accumulates so match time does not depend
// on where the strings diverge.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
