// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

type countingResolver struct {
	principal *types.Principal
	err       error
	calls     int
}

func (c *countingResolver) Resolve(_ context.Context, _ string, _ schema.Ref) (*types.Principal, error) {
	c.calls++
	return c.principal, c.err
}

func newMiddleware(resolver ResolverInterface, restricted bool) *Middleware {
	return NewMiddleware(
		resolver,
		restricted,
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)
}

func okHandler(captured **types.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			p, _ := PrincipalFromContext(r.Context())
			*captured = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func scopedRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(schema.WithSchema(req.Context(), testRef))
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	resolver := &countingResolver{principal: &types.Principal{ID: "u1"}}
	m := newMiddleware(resolver, true)

	var captured *types.Principal
	w := httptest.NewRecorder()
	m.Authenticate()(okHandler(&captured)).ServeHTTP(w, scopedRequest("Bearer good"))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "u1", captured.ID)
	assert.Equal(t, 1, resolver.calls)
}

func TestAuthenticateRejections(t *testing.T) {
	testCases := []struct {
		name   string
		header string
		err    error
	}{
		{"missing header", "", nil},
		{"not a bearer scheme", "Basic dXNlcjpwYXNz", nil},
		{"resolution fails", "Bearer bad", ErrUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMiddleware(&countingResolver{err: tc.err}, true)

			w := httptest.NewRecorder()
			m.Authenticate()(okHandler(nil)).ServeHTTP(w, scopedRequest(tc.header))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthenticateReusesCachedPrincipal(t *testing.T) {
	resolver := &countingResolver{principal: &types.Principal{ID: "u1"}}
	m := newMiddleware(resolver, true)

	req := scopedRequest("")
	req = req.WithContext(WithPrincipal(req.Context(), &types.Principal{ID: "cached"}))

	var captured *types.Principal
	w := httptest.NewRecorder()
	m.Authenticate()(okHandler(&captured)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "cached", captured.ID)
	assert.Equal(t, 0, resolver.calls, "an already resolved caller is never resolved twice")
}

func TestAnonymousAudience(t *testing.T) {
	testCases := []struct {
		name       string
		restricted bool
		header     string
		want       int
	}{
		{"restricted rejects credentials", true, "Bearer token", http.StatusBadRequest},
		{"restricted allows anonymous", true, "", http.StatusOK},
		{"playground tolerates credentials", false, "Bearer token", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMiddleware(&countingResolver{}, tc.restricted)

			w := httptest.NewRecorder()
			m.Anonymous()(okHandler(nil)).ServeHTTP(w, scopedRequest(tc.header))

			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestCapabilityChecksFailClosed(t *testing.T) {
	staffOnly := &types.Principal{ID: "u1", Capabilities: map[string]bool{types.CapabilityStaff: true}}
	hqStaff := &types.Principal{ID: "u2", Capabilities: map[string]bool{
		types.CapabilityStaff: true,
		types.CapabilityHQ:    true,
	}}

	testCases := []struct {
		name      string
		principal *types.Principal
		guard     func(m *Middleware) func(http.Handler) http.Handler
		want      int
	}{
		{"staff check without principal", nil, (*Middleware).RequireStaff, http.StatusForbidden},
		{"staff check with staff", staffOnly, (*Middleware).RequireStaff, http.StatusOK},
		{"hq check with staff only", staffOnly, (*Middleware).RequireHQ, http.StatusForbidden},
		{"hq check with staff and hq", hqStaff, (*Middleware).RequireHQ, http.StatusOK},
		{"hq check without principal", nil, (*Middleware).RequireHQ, http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMiddleware(&countingResolver{}, true)

			req := scopedRequest("")
			if tc.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tc.principal))
			}

			w := httptest.NewRecorder()
			tc.guard(m)(okHandler(nil)).ServeHTTP(w, req)

			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestNoopResolverGrantsEverything(t *testing.T) {
	p, err := NewNoopResolver().Resolve(context.Background(), "u42", testRef)
	require.NoError(t, err)

	assert.Equal(t, "u42", p.ID)
	assert.Equal(t, testRef.String(), p.SchemaName)
	assert.True(t, p.Can(types.CapabilityStaff))
	assert.True(t, p.Can(types.CapabilityHQ))
}
