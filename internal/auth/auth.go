// Package auth verifies the bearer tokens issued by the account frontend.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guidely/guidely-api/internal/constants"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
)

// UserClaims represents the claims in an access token.
type UserClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

// GetTier returns the user's plan tier, defaulting to free for missing or
// unknown values.
func (c *UserClaims) GetTier() string {
	tier := strings.ToLower(strings.TrimSpace(c.Tier))
	switch tier {
	case constants.TierFree, constants.TierPro, constants.TierProPlus:
		return tier
	default:
		return constants.TierFree
	}
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a token verifier for the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses and validates a bearer token, returning its claims.
func (v *Verifier) VerifyToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingClaims)
	}

	return claims, nil
}

// IssueToken signs a token for the given identity. Used by tests and the
// local development login helper.
func (v *Verifier) IssueToken(email, tier string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Tier:  tier,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
