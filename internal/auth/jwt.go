// Package auth signs and verifies the HS256 bearer tokens accepted by the
// WebSocket gateway at upgrade time.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/triplexrpc/triplex/pkg/rpc"
)

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidSecretLength = errors.New("jwt secret must be at least 32 characters")
)

const defaultIssuer = "triplex"

// Service verifies and mints bearer tokens. Tokens are HMAC-SHA256 signed
// with a shared secret; asymmetric schemes are out of scope.
type Service struct {
	secret []byte
	issuer string
}

// NewService creates a token service from the shared secret.
func NewService(secret string) (*Service, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	return &Service{secret: []byte(secret), issuer: defaultIssuer}, nil
}

// Verify validates tokenString and returns the principal it asserts. The
// principal's Claims carry every verified claim so handlers can inspect
// application-specific ones.
func (s *Service) Verify(tokenString string) (*rpc.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &rpc.Principal{
		Subject: subject,
		Claims:  map[string]any(claims),
	}, nil
}

// Mint signs a token asserting subject, valid for ttl. Extra claims are
// merged in without overriding the registered ones.
func (s *Service) Mint(subject string, ttl time.Duration, extra map[string]any) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("mint token: empty subject")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	for k, v := range extra {
		if _, reserved := claims[k]; !reserved {
			claims[k] = v
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
