// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package status

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/canonical/tenant-auth-service/internal/http/types"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/version"
)

type API struct {
	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *API {
	a := new(API)

	a.tracer = tracer
	a.monitor = monitor
	a.logger = logger

	return a
}

func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Get("/api/v0/status", a.handleStatus)
	mux.Get("/api/v0/version", a.handleVersion)
}

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, span := a.tracer.Start(r.Context(), "status.API.handleStatus")
	defer span.End()

	types.WriteJSON(w, http.StatusOK, &statusResponse{
		Status:  "ok",
		Service: a.monitor.GetService(),
	})
}

type versionResponse struct {
	Version string `json:"version"`
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	_, span := a.tracer.Start(r.Context(), "status.API.handleVersion")
	defer span.End()

	types.WriteJSON(w, http.StatusOK, &versionResponse{Version: version.Version})
}
