// internal/common/utils/jwt.go
// Access token generation and validation for the main session scheme.
// Tokens are minted by the surrounding dashboard; this service only verifies them.

package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AccessTokenType is the "type" claim carried by session access tokens.
const AccessTokenType = "access"

// JWTClaims is the identity carried by an access token
type JWTClaims struct {
	UserID        int64  `json:"-"`
	Username      string `json:"username,omitempty"`
	Role          string `json:"role"`
	SecurityLevel int    `json:"security_level"`
	Type          string `json:"type"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed HS256 access token. The user id travels in
// the subject claim.
func GenerateJWT(claims *JWTClaims, secret string) (string, error) {
	if claims.Subject == "" {
		claims.Subject = strconv.FormatInt(claims.UserID, 10)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates an access token and returns its claims
func ValidateJWT(tokenString string, secret string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, errors.New("invalid subject in token")
	}
	claims.UserID = userID

	return claims, nil
}

// NewAccessClaims builds claims for an access token valid for ttl
func NewAccessClaims(userID int64, role string, securityLevel int, ttl time.Duration) *JWTClaims {
	now := time.Now()
	return &JWTClaims{
		UserID:        userID,
		Role:          role,
		SecurityLevel: securityLevel,
		Type:          AccessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
