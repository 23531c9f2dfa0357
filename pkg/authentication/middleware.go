// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"net/http"
	"strings"

	"github.com/canonical/tenant-auth-service/internal/http/types"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	domain "github.com/canonical/tenant-auth-service/internal/types"
)

type Middleware struct {
	resolver ResolverInterface

	// restricted applies the deployed-environment header rules: the
	// anonymous audience rejects credentials, the authenticated ones
	// demand them. Playground mode lifts both.
	restricted bool

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewMiddleware(
	resolver ResolverInterface,
	restricted bool,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Middleware {
	m := new(Middleware)

	m.resolver = resolver
	m.restricted = restricted
	m.tracer = tracer
	m.monitor = monitor
	m.logger = logger

	return m
}

// Anonymous guards the audience that never needs a signed-in caller.
// In restricted mode a presented credential is itself an error, which
// keeps tokens from leaking into logs and proxies on public routes.
func (m *Middleware) Anonymous() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.restricted && r.Header.Get("Authorization") != "" {
				types.WriteBadRequest(w, "authorization header is not accepted here")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate resolves the caller exactly once and caches it in the
// request context; nested routers reuse the cached principal.
func (m *Middleware) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "authentication.Middleware.Authenticate")
			defer span.End()

			if _, ok := PrincipalFromContext(ctx); ok {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, found := m.getBearerToken(r.Header)
			if !found {
				types.WriteError(w, http.StatusUnauthorized, types.KindTokenInvalid, "missing authorization header")
				return
			}

			ref, err := schema.MustFromContext(ctx)
			if err != nil {
				types.WriteBadRequest(w, "bad request")
				return
			}

			principal, err := m.resolver.Resolve(ctx, token, ref)
			if err != nil {
				m.logger.Debugf("token resolution failed: %v", err)
				types.WriteError(w, http.StatusUnauthorized, types.KindTokenInvalid, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// RequireStaff admits only callers holding the staff capability.
func (m *Middleware) RequireStaff() func(http.Handler) http.Handler {
	return m.requireCapabilities(domain.CapabilityStaff)
}

// RequireHQ admits only staff callers that also hold the hq capability.
func (m *Middleware) RequireHQ() func(http.Handler) http.Handler {
	return m.requireCapabilities(domain.CapabilityStaff, domain.CapabilityHQ)
}

func (m *Middleware) requireCapabilities(capabilities ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				types.WritePermissionDenied(w)
				return
			}

			for _, capability := range capabilities {
				if !principal.Can(capability) {
					types.WritePermissionDenied(w)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) getBearerToken(headers http.Header) (string, bool) {
	bearer := headers.Get("Authorization")
	if bearer == "" {
		return "", false
	}

	// Only support "Bearer <token>" format (RFC 6750)
	if !strings.HasPrefix(bearer, "Bearer ") {
		return "", false
	}

	return strings.TrimPrefix(bearer, "Bearer "), true
}
