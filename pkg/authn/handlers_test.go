// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/canonical/tenant-auth-service/internal/captcha"
	"github.com/canonical/tenant-auth-service/internal/events"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage/storagefake"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/directory"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

type fakeTokens struct {
	issued int
}

func (f *fakeTokens) Issue(_ context.Context, _ *types.User, _ schema.Ref) (*token.Pair, error) {
	f.issued++
	return &token.Pair{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeTokens) Verify(string) (*token.Claims, error)                 { return nil, nil }
func (f *fakeTokens) Refresh(context.Context, string) (*token.Pair, error) { return nil, nil }
func (f *fakeTokens) Revoke(context.Context, string) error                 { return nil }

type fakeDirectory struct {
	tenants map[string]*types.Tenant
}

func (f *fakeDirectory) ResolveByEmail(_ context.Context, email string) (*types.Tenant, error) {
	if t, ok := f.tenants[email]; ok {
		return t, nil
	}
	return nil, directory.ErrTenantNotFound
}

type fakeGate struct {
	valid bool
}

func (f *fakeGate) IsWithinValidityPeriod(context.Context, schema.Ref) (bool, error) {
	return f.valid, nil
}

type apiFixture struct {
	api      *API
	accounts *storagefake.Account
	tokens   *fakeTokens
	gate     *fakeGate
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	accounts := storagefake.NewAccount(testRef)
	authenticator := NewAuthenticator(
		accounts,
		events.NewNoopEmitter(),
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)

	tokens := new(fakeTokens)
	gate := &fakeGate{valid: true}
	dir := &fakeDirectory{tenants: map[string]*types.Tenant{
		"admin@acme.com": {ID: "t1", SchemaName: testRef.String(), Email: "admin@acme.com"},
	}}

	api := NewAPI(
		authenticator,
		tokens,
		dir,
		gate,
		captcha.NewNoopVerifier(),
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)

	return &apiFixture{api: api, accounts: accounts, tokens: tokens, gate: gate}
}

func (f *apiFixture) signin(t *testing.T, ref schema.Ref, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader(body))
	req = req.WithContext(schema.WithSchema(req.Context(), ref))
	w := httptest.NewRecorder()
	f.api.signinHandler(false)(w, req)
	return w
}

func seedHandlerUser(t *testing.T, accounts *storagefake.Account) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	_, err = accounts.CreateUser(schema.WithSchema(context.Background(), testRef), &types.User{
		ID:           "u1",
		Endpoint:     "dashboard",
		Email:        "admin@acme.com",
		PasswordHash: string(hash),
	})
	require.NoError(t, err)
}

func TestSigninSuccess(t *testing.T) {
	f := newAPIFixture(t)
	seedHandlerUser(t, f.accounts)

	w := f.signin(t, testRef, `{"email":"admin@acme.com","password":"correct horse"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")
	assert.Contains(t, w.Body.String(), `"schema":"`+testRef.String()+`"`)
	assert.Equal(t, 1, f.tokens.issued)
}

func TestSigninFailuresAreIdenticalResponses(t *testing.T) {
	f := newAPIFixture(t)
	seedHandlerUser(t, f.accounts)

	wrongPwd := f.signin(t, testRef, `{"email":"admin@acme.com","password":"battery staple"}`)
	unknown := f.signin(t, testRef, `{"email":"nobody@acme.com","password":"battery staple"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPwd.Code)
	assert.Equal(t, wrongPwd.Code, unknown.Code)
	assert.Equal(t, wrongPwd.Body.String(), unknown.Body.String(),
		"a wrong password and an unknown address must be byte-identical on the wire")
	assert.Equal(t, 0, f.tokens.issued)
}

func TestSigninOnSharedHostResolvesTenantByEmail(t *testing.T) {
	f := newAPIFixture(t)
	seedHandlerUser(t, f.accounts)

	w := f.signin(t, schema.Public, `{"email":"admin@acme.com","password":"correct horse"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSigninOnSharedHostUnknownEmail(t *testing.T) {
	f := newAPIFixture(t)
	seedHandlerUser(t, f.accounts)

	w := f.signin(t, schema.Public, `{"email":"nobody@acme.com","password":"correct horse"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSigninBlockedWithoutValidContract(t *testing.T) {
	f := newAPIFixture(t)
	seedHandlerUser(t, f.accounts)
	f.gate.valid = false

	w := f.signin(t, testRef, `{"email":"admin@acme.com","password":"correct horse"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not within validity period")
	assert.Equal(t, 0, f.tokens.issued)
}

func TestSigninHQEndpointSkipsContractGate(t *testing.T) {
	f := newAPIFixture(t)
	f.gate.valid = false

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = f.accounts.CreateUser(schema.WithSchema(context.Background(), testRef), &types.User{
		ID:           "op1",
		Endpoint:     "hq",
		Email:        "ops@acme.com",
		PasswordHash: string(hash),
	})
	require.NoError(t, err)

	w := f.signin(t, testRef, `{"email":"ops@acme.com","password":"correct horse","endpoint":"hq"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.tokens.issued)
}

func TestSigninRejectsMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	w := f.signin(t, testRef, `{"email":"admin@acme.com"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
