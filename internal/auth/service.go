// Package auth validates the bearer tokens the account service issues.
// Registration and credential handling live outside this backend; the
// metering engine only needs to know which user a request belongs to.
package auth

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for expired, malformed, or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

type Service interface {
	IssueToken(ctx context.Context, userID int64) (string, error)
	ValidateToken(ctx context.Context, token string) (int64, error)
}

type service struct {
	secret []byte
	ttl    time.Duration
}

// NewService reads the signing secret from JWT_SECRET, with a dev fallback.
func NewService() Service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "supersecretmvp"
	}
	return &service{secret: []byte(secret), ttl: 24 * time.Hour}
}

var _ Service = (*service)(nil)

func (s *service) IssueToken(_ context.Context, userID int64) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (int64, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, ErrInvalidToken
	}
	c, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
