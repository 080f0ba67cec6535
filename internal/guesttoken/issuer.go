// Package guesttoken mints and verifies the capability tokens that let an
// unauthenticated guest join and leave exactly one call.
package guesttoken

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
)

const (
	// Audience is the "aud" claim of every guest token.
	Audience = "call-guest"
	// TokenType is the "typ" claim of every guest token.
	TokenType = "guest"

	DefaultTTL = 24 * time.Hour

	keyInfo = "ewers/guest-token/v1"
)

// ErrInvalidToken is returned for every verification failure.
var ErrInvalidToken = errs.New(errs.ErrUnauthorized, "invalid guest token")

// Claims is the payload of a guest token.
type Claims struct {
	CallID        int64  `json:"cid"`
	ParticipantID int64  `json:"pid"`
	DisplayName   string `json:"name"`
	Type          string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies guest tokens with HS256.
type Issuer struct {
	key    []byte
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

// NewIssuer returns an Issuer signing with key. A non-positive ttl selects
// DefaultTTL and a nil clk selects the wall clock.
func NewIssuer(key []byte, ttl time.Duration, clk clock.Clock) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{
		key:   key,
		ttl:   ttl,
		clock: clk,
		// Time-based claims are checked against the injected clock in Verify.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// DeriveKey derives a guest signing key from the access-token secret so that
// neither kind of token verifies under the other's key.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive guest key: %w", err)
	}
	return key, nil
}

// Issue mints a token binding the holder to participantID in callID.
func (i *Issuer) Issue(callID, participantID int64, displayName string) (string, time.Time, error) {
	now := i.clock.Now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(i.ttl))

	claims := &Claims{
		CallID:        callID,
		ParticipantID: participantID,
		DisplayName:   displayName,
		Type:          TokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign guest token: %w", err)
	}
	return token, expiresAt.Time, nil
}

// Verify checks signature, algorithm, audience, type and expiry.
// Any failure yields ErrInvalidToken.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := i.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != TokenType || !claims.VerifyAudience(Audience, true) {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(i.clock.Now(), true) {
		return nil, ErrInvalidToken
	}
	if claims.CallID <= 0 || claims.ParticipantID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
