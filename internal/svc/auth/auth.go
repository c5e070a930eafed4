package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/wavechat/gateway/internal/errors"
	"github.com/wavechat/gateway/internal/structures"
)

// Authorizer validates the bearer tokens clients present during IDENTIFY.
// Verification fails closed: any failure is fatal to the connection.
type Authorizer interface {
	SignAccessToken(userID structures.ID, sessionID string, ttl time.Duration) (string, time.Time, error)
	VerifyAccessToken(ctx context.Context, token string) (Claims, error)
	RevokeSession(ctx context.Context, sessionID string) error
}

// Claims is the identity a valid token resolves to.
type Claims struct {
	UserID    structures.ID
	SessionID string
	ExpiresAt time.Time
}

type JWTClaimUser struct {
	UserID    structures.ID `json:"u"`
	SessionID string        `json:"s"`

	jwt.RegisteredClaims
}

type Options struct {
	JWTSecret string
	Sessions  SessionStore
}

type authorizer struct {
	secret   []byte
	sessions SessionStore
}

func New(opt Options) Authorizer {
	return &authorizer{
		secret:   []byte(opt.JWTSecret),
		sessions: opt.Sessions,
	}
}

func (a *authorizer) SignAccessToken(userID structures.ID, sessionID string, ttl time.Duration) (string, time.Time, error) {
	expiry := time.Now().Add(ttl)

	claim := JWTClaimUser{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claim)

	tokenStr, err := token.SignedString(a.secret)

	return tokenStr, expiry, err
}

func (a *authorizer) VerifyAccessToken(ctx context.Context, token string) (Claims, error) {
	claim := JWTClaimUser{}

	result, err := jwt.ParseWithClaims(token, &claim, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("bad jwt signing method, expected HMAC but got %v", t.Header["alg"])
		}

		return a.secret, nil
	})
	if err != nil || !result.Valid {
		if err != nil && jwtErrorIsExpiry(err) {
			return Claims{}, errors.ErrTokenExpired
		}

		return Claims{}, errors.ErrBadToken
	}

	if claim.UserID.IsNil() || claim.SessionID == "" {
		return Claims{}, errors.ErrBadToken
	}

	revoked, err := a.sessions.IsRevoked(ctx, claim.SessionID)
	if err != nil {
		return Claims{}, err
	}

	if revoked {
		return Claims{}, errors.ErrSessionRevoked
	}

	return Claims{
		UserID:    claim.UserID,
		SessionID: claim.SessionID,
		ExpiresAt: claim.ExpiresAt.Time,
	}, nil
}

func (a *authorizer) RevokeSession(ctx context.Context, sessionID string) error {
	return a.sessions.Revoke(ctx, sessionID)
}

func jwtErrorIsExpiry(err error) bool {
	ve, ok := err.(*jwt.ValidationError)

	return ok && ve.Errors&jwt.ValidationErrorExpired != 0
}
