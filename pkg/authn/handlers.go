// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/canonical/tenant-auth-service/internal/captcha"
	"github.com/canonical/tenant-auth-service/internal/http/types"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	domain "github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/directory"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

// DirectoryInterface locates the partition for logins arriving on the
// shared account host, where only the email identifies the tenant.
type DirectoryInterface interface {
	ResolveByEmail(ctx context.Context, email string) (*domain.Tenant, error)
}

type GateInterface interface {
	IsWithinValidityPeriod(ctx context.Context, ref schema.Ref) (bool, error)
}

const defaultEndpoint = "dashboard"

type API struct {
	authenticator AuthenticatorInterface
	tokens        token.ServiceInterface
	directory     DirectoryInterface
	gate          GateInterface
	verifier      captcha.VerifierInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(
	authenticator AuthenticatorInterface,
	tokens token.ServiceInterface,
	dir DirectoryInterface,
	gate GateInterface,
	verifier captcha.VerifierInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *API {
	a := new(API)

	a.authenticator = authenticator
	a.tokens = tokens
	a.directory = dir
	a.gate = gate
	a.verifier = verifier
	a.tracer = tracer
	a.monitor = monitor
	a.logger = logger

	return a
}

// RegisterEndpoints mounts the tenant-scoped signin route, where the
// partition was already resolved from the request host or scope header.
func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Post("/signin", a.signinHandler(false))
}

// RegisterWebsiteEndpoints mounts the public-website signin route. It is
// captcha-gated and discovers the tenant from the submitted email.
func (a *API) RegisterWebsiteEndpoints(mux *chi.Mux) {
	mux.Post("/signin", a.signinHandler(true))
}

type signinRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Endpoint     string `json:"endpoint"`
	CaptchaToken string `json:"captcha_token"`
}

type signinPayload struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Endpoint string `json:"endpoint"`
	Schema   string `json:"schema"`
}

type signinResponse struct {
	*token.Pair
	Payload signinPayload `json:"payload"`
}

func (a *API) signinHandler(captchaGated bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := a.tracer.Start(r.Context(), "authn.API.signin")
		defer span.End()

		req := new(signinRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Email == "" || req.Password == "" {
			types.WriteBadRequest(w, "email and password are required")
			return
		}
		if req.Endpoint == "" {
			req.Endpoint = defaultEndpoint
		}

		if captchaGated {
			ok, err := a.verifier.Verify(ctx, req.CaptchaToken, "signin")
			if err != nil || !ok {
				a.logger.Debugf("captcha rejected signin: %v", err)
				types.WriteAuthenticationFailed(w)
				return
			}
		}

		ref, err := schema.MustFromContext(ctx)
		if err != nil {
			types.WriteBadRequest(w, "bad request")
			return
		}

		// Logins on the shared account host carry no tenant in the URL;
		// the oldest tenant owning the email decides the partition.
		if ref.IsPublic() {
			tenant, err := a.directory.ResolveByEmail(ctx, req.Email)
			if err != nil {
				if errors.Is(err, directory.ErrTenantNotFound) {
					types.WriteAuthenticationFailed(w)
					return
				}
				a.logger.Errorf("tenant lookup failed: %v", err)
				types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal server error")
				return
			}
			ref = schema.Ref(tenant.SchemaName)
		}

		// Operator signins skip the contract gate: a lapsed contract
		// must not lock out the people who would renew it.
		if req.Endpoint != domain.CapabilityHQ {
			valid, err := a.gate.IsWithinValidityPeriod(ctx, ref)
			if err != nil {
				a.logger.Errorf("contract check failed: %v", err)
				types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal server error")
				return
			}
			if !valid {
				types.WriteValidationError(w, "not within validity period")
				return
			}
		}

		principal, err := a.authenticator.Authenticate(ctx, ref, req.Endpoint, req.Email, req.Password)
		if err != nil {
			a.logger.Errorf("authentication failed: %v", err)
			types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal server error")
			return
		}
		if principal == nil {
			types.WriteAuthenticationFailed(w)
			return
		}

		pair, err := a.tokens.Issue(schema.WithSchema(ctx, ref), &domain.User{
			ID:       principal.ID,
			Email:    principal.Email,
			Endpoint: principal.Endpoint,
		}, ref)
		if err != nil {
			a.logger.Errorf("token issuance failed: %v", err)
			types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal server error")
			return
		}

		types.WriteJSON(w, http.StatusOK, &signinResponse{
			Pair: pair,
			Payload: signinPayload{
				UserID:   principal.ID,
				Email:    principal.Email,
				Endpoint: principal.Endpoint,
				Schema:   ref.String(),
			},
		})
	}
}
