package auth

import (
	"context"
	"testing"
	"time"

	"github.com/wavechat/gateway/internal/errors"
	"github.com/wavechat/gateway/internal/structures"
	"github.com/wavechat/gateway/internal/testutil"
)

func newTestAuthorizer() Authorizer {
	return New(Options{
		JWTSecret: "test-secret",
		Sessions:  NewMemorySessionStore(),
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	a := newTestAuthorizer()
	ctx := context.Background()

	token, expiry, err := a.SignAccessToken(42, "sess-1", time.Hour)
	testutil.IsNil(t, err, "sign")
	testutil.IsTrue(t, expiry.After(time.Now()), "expiry in the future")

	claims, err := a.VerifyAccessToken(ctx, token)
	testutil.IsNil(t, err, "verify")
	testutil.Assert(t, structures.ID(42), claims.UserID, "user id round-trips")
	testutil.Assert(t, "sess-1", claims.SessionID, "session id round-trips")
}

func TestVerifyRejectsGarbage(t *testing.T) {
	a := newTestAuthorizer()
	ctx := context.Background()

	_, err := a.VerifyAccessToken(ctx, "not-a-token")
	testutil.AssertErr(t, errors.ErrBadToken, err, "garbage rejected")

	other := New(Options{JWTSecret: "different-secret", Sessions: NewMemorySessionStore()})

	token, _, _ := other.SignAccessToken(42, "sess-1", time.Hour)

	_, err = a.VerifyAccessToken(ctx, token)
	testutil.AssertErr(t, errors.ErrBadToken, err, "wrong signature rejected")
}

func TestVerifyRejectsExpired(t *testing.T) {
	a := newTestAuthorizer()
	ctx := context.Background()

	token, _, _ := a.SignAccessToken(42, "sess-1", -time.Minute)

	_, err := a.VerifyAccessToken(ctx, token)
	testutil.AssertErr(t, errors.ErrTokenExpired, err, "expired token rejected")
}

func TestVerifyRejectsRevokedSession(t *testing.T) {
	a := newTestAuthorizer()
	ctx := context.Background()

	token, _, _ := a.SignAccessToken(42, "sess-1", time.Hour)

	testutil.IsNil(t, a.RevokeSession(ctx, "sess-1"), "revoke")

	_, err := a.VerifyAccessToken(ctx, token)
	testutil.AssertErr(t, errors.ErrSessionRevoked, err, "revoked session rejected")
}
