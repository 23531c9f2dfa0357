// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package directory

import (
	"errors"
	"net/http"

	"github.com/canonical/tenant-auth-service/internal/http/types"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/tracing"
)

// HeaderName carries the tenant selector; the Host header is the
// fallback so browser traffic on tenant domains needs no extra header.
const HeaderName = "X-Tenant"

type Middleware struct {
	service *Service

	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

func NewMiddleware(service *Service, tracer tracing.TracingInterface, logger logging.LoggerInterface) *Middleware {
	return &Middleware{
		service: service,
		tracer:  tracer,
		logger:  logger,
	}
}

// ResolveTenant scopes the request to the partition named by the
// selector. Unresolvable selectors on tenant-scoped routes are a hard
// failure before any handler runs.
func (m *Middleware) ResolveTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.tracer.Start(r.Context(), "directory.Middleware.ResolveTenant")
			defer span.End()

			selector := r.Header.Get(HeaderName)
			if selector == "" {
				selector = r.Host
			}

			ref, err := m.service.Resolve(ctx, selector)
			if err != nil {
				if errors.Is(err, ErrTenantNotFound) {
					types.WriteBadRequest(w, "bad request")
					return
				}
				m.logger.Errorf("tenant resolution failed: %v", err)
				types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(schema.WithSchema(ctx, ref)))
		})
	}
}
