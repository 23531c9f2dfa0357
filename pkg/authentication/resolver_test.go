// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage/storagefake"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

const testRef = schema.Ref("t0b7339a2a83c4bb0a1ddbff2c6b718f1")

type fakeVerifier struct {
	claims map[string]*token.Claims
	calls  int
}

func (f *fakeVerifier) Verify(tokenString string) (*token.Claims, error) {
	f.calls++
	if c, ok := f.claims[tokenString]; ok {
		return c, nil
	}
	return nil, token.ErrTokenInvalid
}

func claimsFor(userID string, ref schema.Ref) *token.Claims {
	c := new(token.Claims)
	c.Subject = userID
	c.Schema = ref.String()
	return c
}

func newResolver(t *testing.T, verifier VerifierInterface) (*Resolver, *storagefake.Account) {
	t.Helper()

	accounts := storagefake.NewAccount(testRef)
	r := NewResolver(
		verifier,
		accounts,
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)
	return r, accounts
}

func seedUser(t *testing.T, accounts *storagefake.Account, roles ...string) *types.User {
	t.Helper()

	ctx := schema.WithSchema(context.Background(), testRef)
	u, err := accounts.CreateUser(ctx, &types.User{
		ID:       "u1",
		Endpoint: "dashboard",
		Email:    "admin@acme.com",
	})
	require.NoError(t, err)
	for _, role := range roles {
		require.NoError(t, accounts.AssignRole(ctx, u.ID, role))
	}
	return u
}

func TestResolveBuildsPrincipalWithCapabilities(t *testing.T) {
	verifier := &fakeVerifier{claims: map[string]*token.Claims{
		"good": claimsFor("u1", testRef),
	}}
	r, accounts := newResolver(t, verifier)
	seedUser(t, accounts, "staff")

	p, err := r.Resolve(context.Background(), "good", testRef)

	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "admin@acme.com", p.Email)
	assert.True(t, p.Can(types.CapabilityStaff))
	assert.False(t, p.Can(types.CapabilityHQ))
}

func TestResolveRejectsScopeMismatch(t *testing.T) {
	other := schema.Ref("t9f2c1e7d5a3b4c6d8e0f1a2b3c4d5e6f")
	verifier := &fakeVerifier{claims: map[string]*token.Claims{
		"good": claimsFor("u1", other),
	}}
	r, accounts := newResolver(t, verifier)
	seedUser(t, accounts)

	_, err := r.Resolve(context.Background(), "good", testRef)

	assert.ErrorIs(t, err, ErrUnauthorized, "a token minted for one partition must not open another")
}

func TestResolveRejectsUnknownSubject(t *testing.T) {
	verifier := &fakeVerifier{claims: map[string]*token.Claims{
		"good": claimsFor("ghost", testRef),
	}}
	r, _ := newResolver(t, verifier)

	_, err := r.Resolve(context.Background(), "good", testRef)

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveRejectsBadToken(t *testing.T) {
	r, _ := newResolver(t, &fakeVerifier{})

	_, err := r.Resolve(context.Background(), "garbage", testRef)

	assert.ErrorIs(t, err, ErrUnauthorized)
}
