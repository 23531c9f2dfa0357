// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package web

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/canonical/tenant-auth-service/internal/db"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/pkg/authentication"
	"github.com/canonical/tenant-auth-service/pkg/authn"
	"github.com/canonical/tenant-auth-service/pkg/directory"
	"github.com/canonical/tenant-auth-service/pkg/metrics"
	"github.com/canonical/tenant-auth-service/pkg/status"
	"github.com/canonical/tenant-auth-service/pkg/tenant"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

// NewRouter assembles the audience groups. Every /api/v0/{audience}
// request is scoped to a partition, wrapped in a transaction when it
// mutates, and then run through the audience's access rules.
func NewRouter(
	directoryMiddleware *directory.Middleware,
	authMiddleware *authentication.Middleware,
	authnAPI *authn.API,
	tokenAPI *token.API,
	tenantAPI *tenant.API,
	dbClient db.DBClientInterface,
	allowedOrigins []string,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) http.Handler {
	router := chi.NewMux()

	router.Use(
		middleware.RequestID,
		cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", directory.HeaderName},
			AllowCredentials: true,
		}),
		monitoring.NewMiddleware(monitor, logger).ResponseTime(),
	)

	metrics.NewAPI(logger).RegisterEndpoints(router)
	status.NewAPI(tracer, monitor, logger).RegisterEndpoints(router)

	scoped := chi.Middlewares{
		directoryMiddleware.ResolveTenant(),
		db.TransactionMiddleware(dbClient, logger),
	}

	authMux := chi.NewMux()
	authMux.Use(scoped...)
	authMux.Use(authMiddleware.Anonymous())
	authnAPI.RegisterEndpoints(authMux)
	tokenAPI.RegisterEndpoints(authMux)
	router.Mount("/api/v0/auth", authMux)

	websiteMux := chi.NewMux()
	websiteMux.Use(scoped...)
	websiteMux.Use(authMiddleware.Anonymous())
	authnAPI.RegisterWebsiteEndpoints(websiteMux)
	tenantAPI.RegisterWebsiteEndpoints(websiteMux)
	router.Mount("/api/v0/website", websiteMux)

	dashboardMux := chi.NewMux()
	dashboardMux.Use(scoped...)
	dashboardMux.Use(authMiddleware.Authenticate())
	tenantAPI.RegisterDashboardEndpoints(dashboardMux)
	router.Mount("/api/v0/dashboard", dashboardMux)

	hqMux := chi.NewMux()
	hqMux.Use(scoped...)
	hqMux.Use(authMiddleware.Authenticate(), authMiddleware.RequireHQ())
	tenantAPI.RegisterHQEndpoints(hqMux)
	router.Mount("/api/v0/hq", hqMux)

	return tracing.NewMiddleware(monitor, logger).OpenTelemetry(router)
}
