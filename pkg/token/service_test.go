// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/tenant-auth-service/internal/events"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage/storagefake"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

const testRef = schema.Ref("t0b7339a2a83c4bb0a1ddbff2c6b718f1")

func newTestService(t *testing.T, reuse bool) (*Service, *storagefake.Account, context.Context) {
	t.Helper()

	accounts := storagefake.NewAccount(testRef)
	s := NewService(
		Config{
			SecretKey:          []byte("test-secret-key"),
			AccessLifetime:     time.Hour,
			RefreshLifetime:    7 * 24 * time.Hour,
			ReuseRefreshTokens: reuse,
		},
		accounts,
		events.NewNoopEmitter(),
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)

	return s, accounts, schema.WithSchema(context.Background(), testRef)
}

func seedUser(t *testing.T, accounts *storagefake.Account, ctx context.Context) *types.User {
	t.Helper()

	u, err := accounts.CreateUser(ctx, &types.User{
		ID:       "u1",
		Endpoint: "dashboard",
		Email:    "admin@acme.com",
	})
	require.NoError(t, err)
	return u
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)
	assert.Len(t, pair.RefreshToken, 64)
	assert.Equal(t, now.Add(time.Hour), pair.ExpiresAt)

	claims, err := s.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Endpoint, claims.Endpoint)
	assert.Equal(t, testRef.String(), claims.Schema)
	assert.Equal(t, now.Unix(), claims.OrigIat)

	stored, err := accounts.GetRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)

	updated, err := accounts.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastLogin)
	assert.Equal(t, now, *updated.LastLogin)
}

func TestIssueAllowsMultipleLiveRefreshTokens(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	first, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)
	second, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = s.Refresh(ctx, first.RefreshToken)
	assert.NoError(t, err)
	_, err = s.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return issued }

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	s.nowFunc = func() time.Time { return issued.Add(time.Hour - time.Second) }
	_, err = s.Verify(pair.AccessToken)
	assert.NoError(t, err, "just before expiry the token is still good")

	s.nowFunc = func() time.Time { return issued.Add(time.Hour) }
	_, err = s.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired, "the token dies at the exact expiry instant")
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s, _, _ := newTestService(t, true)

	testCases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "not-a-token"},
		{"unsigned", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1MSJ9."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Verify(tc.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.NotErrorIs(t, err, ErrTokenExpired)
		})
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	other, _, _ := newTestService(t, true)
	other.secret = []byte("a-different-secret")

	_, err = other.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshReusePolicyKeepsValueAndExtendsWindow(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return issued }

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	later := issued.Add(6 * 24 * time.Hour)
	s.nowFunc = func() time.Time { return later }

	next, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, next.RefreshToken, "reuse keeps the opaque value")

	stored, err := accounts.GetRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, later, stored.Created, "reuse restarts the validity window")

	claims, err := s.Verify(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, issued.Unix(), claims.OrigIat, "the refreshed access token carries the refresh token's creation instant")
	assert.Equal(t, later.Unix(), claims.IssuedAt.Unix())
}

func TestRefreshRotationMintsNewValueAndRevokesOld(t *testing.T) {
	s, accounts, ctx := newTestService(t, false)
	user := seedUser(t, accounts, ctx)

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	next, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = s.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid, "the rotated-out value is dead")

	_, err = s.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsDeadTokens(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return issued }

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	t.Run("unknown", func(t *testing.T) {
		_, err := s.Refresh(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
		assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		s.nowFunc = func() time.Time { return issued.Add(7 * 24 * time.Hour) }
		_, err := s.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
	})

	t.Run("revoked", func(t *testing.T) {
		s.nowFunc = func() time.Time { return issued }
		require.NoError(t, s.Revoke(ctx, pair.RefreshToken))
		_, err := s.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
	})
}

func TestRevokeIsIdempotent(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, s.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, s.Revoke(ctx, "never-issued"))
}

func TestConcurrentRefreshUnderReusePolicy(t *testing.T) {
	s, accounts, ctx := newTestService(t, true)
	user := seedUser(t, accounts, ctx)

	pair, err := s.Issue(ctx, user, testRef)
	require.NoError(t, err)

	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)
	values := make([]string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next, err := s.Refresh(ctx, pair.RefreshToken)
			errs[i] = err
			if next != nil {
				values[i] = next.RefreshToken
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, pair.RefreshToken, values[i], "every concurrent refresh keeps the shared value")
	}
}
