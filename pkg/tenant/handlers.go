// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenant

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/canonical/tenant-auth-service/internal/captcha"
	"github.com/canonical/tenant-auth-service/internal/http/types"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	domain "github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/authn"
)

type API struct {
	service  ServiceInterface
	verifier captcha.VerifierInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(
	service ServiceInterface,
	verifier captcha.VerifierInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *API {
	a := new(API)

	a.service = service
	a.verifier = verifier
	a.tracer = tracer
	a.monitor = monitor
	a.logger = logger

	return a
}

// RegisterWebsiteEndpoints mounts the anonymous signup surface.
func (a *API) RegisterWebsiteEndpoints(mux *chi.Mux) {
	mux.Post("/register", a.handleRegister)
	mux.Post("/email-available", a.handleEmailAvailable)
}

// RegisterDashboardEndpoints mounts tenant self-service domain admin.
func (a *API) RegisterDashboardEndpoints(mux *chi.Mux) {
	mux.Get("/domains", a.handleListDomains)
	mux.Post("/domains", a.handleCreateDomain)
	mux.Put("/domains/{id}", a.handleUpdateDomain)
	mux.Delete("/domains/{id}", a.handleDeleteDomain)
	mux.Post("/domains/{id}/restore", a.handleRestoreDomain)
}

// RegisterHQEndpoints mounts the operator administration surface.
func (a *API) RegisterHQEndpoints(mux *chi.Mux) {
	mux.Get("/tenants", a.handleListTenants)
	mux.Delete("/tenants/{id}", a.handleDeleteTenant)
	mux.Post("/tenants/{id}/restore", a.handleRestoreTenant)
	mux.Delete("/tenants/{id}/purge", a.handlePurgeTenant)
	mux.Post("/tenants/{id}/contracts", a.handleAddContract)
	mux.Post("/contracts/{id}/expire", a.handleExpireContract)
	mux.Post("/email", a.handleUpdateEmail)
}

type registerRequest struct {
	Subdomain    string `json:"subdomain"`
	OrgName      string `json:"org_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type registerResponse struct {
	TenantID     string    `json:"tenant_id"`
	Domain       string    `json:"domain"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleRegister")
	defer span.End()

	req := new(registerRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		types.WriteBadRequest(w, "invalid request body")
		return
	}

	ok, err := a.verifier.Verify(ctx, req.CaptchaToken, "register")
	if err != nil || !ok {
		a.logger.Debugf("captcha rejected registration: %v", err)
		types.WriteValidationError(w, "captcha verification failed")
		return
	}

	result, err := a.service.Register(ctx, RegistrationRequest{
		Subdomain: req.Subdomain,
		OrgName:   req.OrgName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusCreated, &registerResponse{
		TenantID:     result.Tenant.ID,
		Domain:       result.Domain.Domain,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresAt:    result.Tokens.ExpiresAt,
	})
}

type emailAvailableRequest struct {
	Email string `json:"email"`
}

type emailAvailableResponse struct {
	Available bool `json:"available"`
}

func (a *API) handleEmailAvailable(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleEmailAvailable")
	defer span.End()

	req := new(emailAvailableRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Email == "" {
		types.WriteBadRequest(w, "email is required")
		return
	}

	available, err := a.service.CheckEmailAvailable(ctx, req.Email)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &emailAvailableResponse{Available: available})
}

type domainRequest struct {
	Domain    string `json:"domain"`
	IsPrimary bool   `json:"is_primary"`
}

type domainResponse struct {
	ID        string `json:"id"`
	Domain    string `json:"domain"`
	IsPrimary bool   `json:"is_primary"`
	IsBuiltin bool   `json:"is_builtin"`
}

func toDomainResponse(d *domain.Domain) *domainResponse {
	return &domainResponse{
		ID:        d.ID,
		Domain:    d.Domain,
		IsPrimary: d.IsPrimary,
		IsBuiltin: d.IsBuiltin,
	}
}

// requestTenant resolves the tenant owning the partition the request
// was scoped to. Dashboard callers never name their tenant explicitly.
func (a *API) requestTenant(w http.ResponseWriter, r *http.Request) (*domain.Tenant, bool) {
	ref, err := schema.MustFromContext(r.Context())
	if err != nil || ref.IsPublic() {
		types.WriteBadRequest(w, "bad request")
		return nil, false
	}

	tenant, err := a.service.TenantBySchema(r.Context(), ref)
	if err != nil {
		types.WriteBadRequest(w, "bad request")
		return nil, false
	}

	return tenant, true
}

func (a *API) handleListDomains(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleListDomains")
	defer span.End()

	tenant, ok := a.requestTenant(w, r)
	if !ok {
		return
	}

	domains, err := a.service.ListDomains(ctx, tenant.ID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	out := make([]*domainResponse, len(domains))
	for i, d := range domains {
		out[i] = toDomainResponse(d)
	}

	types.WriteJSON(w, http.StatusOK, out)
}

func (a *API) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleCreateDomain")
	defer span.End()

	tenant, ok := a.requestTenant(w, r)
	if !ok {
		return
	}

	req := new(domainRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Domain == "" {
		types.WriteBadRequest(w, "domain is required")
		return
	}

	created, err := a.service.CreateDomain(ctx, tenant.ID, req.Domain, req.IsPrimary)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusCreated, toDomainResponse(created))
}

func (a *API) handleUpdateDomain(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleUpdateDomain")
	defer span.End()

	tenant, ok := a.requestTenant(w, r)
	if !ok {
		return
	}

	req := new(domainRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Domain == "" {
		types.WriteBadRequest(w, "domain is required")
		return
	}

	updated, err := a.service.UpdateDomain(ctx, tenant.ID, chi.URLParam(r, "id"), req.Domain, req.IsPrimary)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, toDomainResponse(updated))
}

func (a *API) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleDeleteDomain")
	defer span.End()

	tenant, ok := a.requestTenant(w, r)
	if !ok {
		return
	}

	if err := a.service.DeleteDomain(ctx, tenant.ID, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &types.SuccessResponse{Success: true})
}

func (a *API) handleRestoreDomain(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleRestoreDomain")
	defer span.End()

	tenant, ok := a.requestTenant(w, r)
	if !ok {
		return
	}

	if err := a.service.RestoreDomain(ctx, tenant.ID, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &types.SuccessResponse{Success: true})
}

type tenantResponse struct {
	ID         string     `json:"id"`
	SchemaName string     `json:"schema_name"`
	Email      string     `json:"email"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

func (a *API) handleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleListTenants")
	defer span.End()

	tenants, err := a.service.ListTenants(ctx)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	out := make([]*tenantResponse, len(tenants))
	for i, t := range tenants {
		out[i] = &tenantResponse{
			ID:         t.ID,
			SchemaName: t.SchemaName,
			Email:      t.Email,
			CreatedAt:  t.CreatedAt,
			DeletedAt:  t.DeletedAt,
		}
	}

	types.WriteJSON(w, http.StatusOK, out)
}

func (a *API) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleDeleteTenant")
	defer span.End()

	if err := a.service.DeleteTenant(ctx, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &types.SuccessResponse{Success: true})
}

func (a *API) handlePurgeTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handlePurgeTenant")
	defer span.End()

	if err := a.service.PurgeTenant(ctx, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &types.SuccessResponse{Success: true})
}

func (a *API) handleRestoreTenant(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleRestoreTenant")
	defer span.End()

	if err := a.service.RestoreTenant(ctx, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &types.SuccessResponse{Success: true})
}

type contractRequest struct {
	Slug          string     `json:"slug"`
	Type          string     `json:"type"`
	Note          string     `json:"note"`
	EffectiveFrom *time.Time `json:"effective_from"`
	ExpiredOn     *time.Time `json:"expired_on"`
}

func (a *API) handleAddContract(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleAddContract")
	defer span.End()

	req := new(contractRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Slug == "" {
		types.WriteBadRequest(w, "slug is required")
		return
	}

	contract, err := a.service.AddContract(ctx, chi.URLParam(r, "id"), req.Slug, req.Type, req.Note, req.EffectiveFrom, req.ExpiredOn)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusCreated, contract)
}

func (a *API) handleExpireContract(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleExpireContract")
	defer span.End()

	if err := a.service.ExpireContract(ctx, chi.URLParam(r, "id"), time.Now().UTC()); err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &types.SuccessResponse{Success: true})
}

type updateEmailRequest struct {
	Scope    string `json:"scope"`
	Original string `json:"original"`
	Updated  string `json:"updated"`
}

type updateEmailResponse struct {
	Updated int64 `json:"updated"`
}

func (a *API) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "tenant.API.handleUpdateEmail")
	defer span.End()

	req := new(updateEmailRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Original == "" || req.Updated == "" {
		types.WriteBadRequest(w, "original and updated emails are required")
		return
	}

	scope := storage.EmailScope(req.Scope)
	switch scope {
	case "":
		scope = storage.EmailScopeAll
	case storage.EmailScopeAll, storage.EmailScopeHQ, storage.EmailScopeOrganization:
	default:
		types.WriteValidationError(w, "unknown scope")
		return
	}

	n, err := a.service.UpdateEmail(ctx, scope, req.Original, req.Updated)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	types.WriteJSON(w, http.StatusOK, &updateEmailResponse{Updated: n})
}

// writeServiceError maps service sentinels onto the wire contract.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidSubdomain),
		errors.Is(err, ErrReservedSubdomain),
		errors.Is(err, ErrInvalidDomain),
		errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrDomainTaken),
		errors.Is(err, ErrSlugTaken),
		errors.Is(err, authn.ErrPasswordTooShort):
		types.WriteValidationError(w, err.Error())
	case errors.Is(err, ErrDomainProtected):
		types.WritePermissionDenied(w)
	case errors.Is(err, ErrNotFound):
		types.WriteError(w, http.StatusNotFound, types.KindBadRequest, "not found")
	default:
		a.logger.Errorf("tenant operation failed: %v", err)
		types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal server error")
	}
}
