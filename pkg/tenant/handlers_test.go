// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/tenant-auth-service/internal/captcha"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

type fakeService struct {
	registerResult *RegistrationResult
	registerErr    error
	emailAvailable bool
	domains        []*types.Domain
	updateEmailN   int64
	lastScope      storage.EmailScope
}

func (f *fakeService) Register(_ context.Context, _ RegistrationRequest) (*RegistrationResult, error) {
	return f.registerResult, f.registerErr
}

func (f *fakeService) CheckEmailAvailable(context.Context, string) (bool, error) {
	return f.emailAvailable, nil
}

func (f *fakeService) UpdateEmail(_ context.Context, scope storage.EmailScope, _, _ string) (int64, error) {
	f.lastScope = scope
	return f.updateEmailN, nil
}

func (f *fakeService) ListDomains(context.Context, string) ([]*types.Domain, error) {
	return f.domains, nil
}

func (f *fakeService) CreateDomain(_ context.Context, tenantID, domain string, isPrimary bool) (*types.Domain, error) {
	return &types.Domain{ID: "d-new", TenantID: tenantID, Domain: domain, IsPrimary: isPrimary}, nil
}

func (f *fakeService) UpdateDomain(_ context.Context, tenantID, domainID, domain string, isPrimary bool) (*types.Domain, error) {
	return &types.Domain{ID: domainID, TenantID: tenantID, Domain: domain, IsPrimary: isPrimary}, nil
}

func (f *fakeService) DeleteDomain(context.Context, string, string) error  { return nil }
func (f *fakeService) RestoreDomain(context.Context, string, string) error { return nil }

func (f *fakeService) ListTenants(context.Context) ([]*types.Tenant, error) { return nil, nil }
func (f *fakeService) DeleteTenant(context.Context, string) error           { return nil }
func (f *fakeService) RestoreTenant(context.Context, string) error          { return nil }
func (f *fakeService) PurgeTenant(context.Context, string) error            { return nil }

func (f *fakeService) AddContract(context.Context, string, string, string, string, *time.Time, *time.Time) (*types.Contract, error) {
	return &types.Contract{ID: "c1"}, nil
}

func (f *fakeService) ExpireContract(context.Context, string, time.Time) error { return nil }

func (f *fakeService) TenantBySchema(_ context.Context, ref schema.Ref) (*types.Tenant, error) {
	return &types.Tenant{ID: "t1", SchemaName: ref.String()}, nil
}

func newHandlerAPI(service ServiceInterface) *API {
	return NewAPI(
		service,
		captcha.NewNoopVerifier(),
		tracing.NewNoopTracer(),
		monitoring.NewNoopMonitor(),
		logging.NewNoopLogger(),
	)
}

func TestHandleRegister(t *testing.T) {
	service := &fakeService{registerResult: &RegistrationResult{
		Tenant: &types.Tenant{ID: "t1"},
		Domain: &types.Domain{Domain: "acme.example.com"},
		Tokens: &token.Pair{AccessToken: "access", RefreshToken: "refresh"},
	}}

	mux := chi.NewMux()
	newHandlerAPI(service).RegisterWebsiteEndpoints(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/register",
		strings.NewReader(`{"subdomain":"acme","email":"owner@acme.com","password":"correct horse"}`)))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "acme.example.com")
	assert.Contains(t, w.Body.String(), "access")
}

func TestHandleRegisterValidationErrors(t *testing.T) {
	service := &fakeService{registerErr: ErrEmailTaken}

	mux := chi.NewMux()
	newHandlerAPI(service).RegisterWebsiteEndpoints(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/register",
		strings.NewReader(`{"subdomain":"acme","email":"owner@acme.com","password":"correct horse"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func TestHandleEmailAvailable(t *testing.T) {
	mux := chi.NewMux()
	newHandlerAPI(&fakeService{emailAvailable: true}).RegisterWebsiteEndpoints(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/email-available",
		strings.NewReader(`{"email":"owner@acme.com"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":true`)
}

func TestDashboardDomainRoutesRequireTenantScope(t *testing.T) {
	mux := chi.NewMux()
	newHandlerAPI(&fakeService{}).RegisterDashboardEndpoints(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/domains", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code, "no partition in context means no tenant to administer")
}

func TestDashboardDomainCreate(t *testing.T) {
	mux := chi.NewMux()
	newHandlerAPI(&fakeService{}).RegisterDashboardEndpoints(mux)

	req := httptest.NewRequest(http.MethodPost, "/domains", strings.NewReader(`{"domain":"www.acme.io","is_primary":true}`))
	req = req.WithContext(schema.WithSchema(req.Context(), schema.Ref("t0b7339a2a83c4bb0a1ddbff2c6b718f1")))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "www.acme.io")
}

func TestHQPurgeTenantRoute(t *testing.T) {
	mux := chi.NewMux()
	newHandlerAPI(&fakeService{}).RegisterHQEndpoints(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/tenants/t1/purge", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestHandleUpdateEmailScopeHandling(t *testing.T) {
	service := &fakeService{updateEmailN: 2}
	mux := chi.NewMux()
	newHandlerAPI(service).RegisterHQEndpoints(mux)

	t.Run("defaults to all", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/email",
			strings.NewReader(`{"original":"a@b.com","updated":"c@d.com"}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, storage.EmailScopeAll, service.lastScope)
		assert.Contains(t, w.Body.String(), `"updated":2`)
	})

	t.Run("unknown scope rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/email",
			strings.NewReader(`{"scope":"galaxy","original":"a@b.com","updated":"c@d.com"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
