// Package attestation lets an approval gate be satisfied by a signed,
// short-lived token instead of (or in addition to) a bare boolean in
// the run context. A token binds an approver identity to one specific
// run_id/node_id pair so that a run record's approved_by attribution is
// backed by more than a trusted caller's say-so. This is strictly
// additive: a run that never sets `_approval_token` is governed
// entirely by the bare boolean gate.
package attestation

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// Claims extends the registered JWT claims with the run/node binding an
// approval attestation token carries.
type Claims struct {
	jwt.RegisteredClaims
	RunID  string `json:"run_id"`
	NodeID string `json:"node_id"`
}

// ErrTokenMismatch is returned when a token verifies cryptographically
// but was not minted for the run_id/node_id being evaluated.
var ErrTokenMismatch = errors.New("attestation: token not valid for this run/node")

// Issuer mints approval attestation tokens.
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer builds an Issuer signing with HS256 over a key derived from
// secret. secret should come from the deployment's secret store, never
// a literal.
func NewIssuer(secret []byte, issuer string) *Issuer {
	if issuer == "" {
		issuer = "saw-core/attestation"
	}
	return &Issuer{secret: deriveKey(secret), issuer: issuer}
}

// deriveKey expands the deployment secret into a dedicated HS256 signing
// key via HKDF, so the raw secret is never used for signing directly and
// can be shared with other subsystems without cross-protocol key reuse.
func deriveKey(secret []byte) []byte {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte("saw-core/approval-attestation/v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		panic(fmt.Sprintf("attestation: hkdf expand: %v", err))
	}
	return key
}

// Issue mints a compact JWT binding approverSubject to runID/nodeID,
// valid for ttl.
func (i *Issuer) Issue(approverSubject, runID, nodeID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   approverSubject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RunID:  runID,
		NodeID: nodeID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("attestation: sign: %w", err)
	}
	return signed, nil
}

// Verifier validates approval attestation tokens. It shares the same
// symmetric secret as the Issuer that minted them.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier over the same deployment secret the
// Issuer was built with.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: deriveKey(secret)}
}

// Verify checks signature, expiry, and that the token's run_id/node_id
// match the gate being evaluated, returning the approver subject.
func (v *Verifier) Verify(tokenString, runID, nodeID string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("attestation: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("attestation: parse: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenSignatureInvalid
	}
	if claims.RunID != runID || claims.NodeID != nodeID {
		return "", ErrTokenMismatch
	}
	return claims.Subject, nil
}
