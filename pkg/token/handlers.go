// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package token

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/canonical/tenant-auth-service/internal/http/types"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/tracing"
)

type API struct {
	service ServiceInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(
	service ServiceInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *API {
	a := new(API)

	a.service = service
	a.tracer = tracer
	a.monitor = monitor
	a.logger = logger

	return a
}

func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Post("/verify", a.handleVerify)
	mux.Post("/refresh", a.handleRefresh)
	mux.Post("/revoke", a.handleRevoke)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Endpoint string `json:"endpoint"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
	OrigIat  int64  `json:"orig_iat"`
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	_, span := a.tracer.Start(r.Context(), "token.API.handleVerify")
	defer span.End()

	req := new(verifyRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Token == "" {
		types.WriteBadRequest(w, "token is required")
		return
	}

	claims, err := a.service.Verify(req.Token)
	if err != nil {
		a.logger.Debugf("token verification failed: %v", err)
		types.WriteError(w, http.StatusUnauthorized, types.KindTokenInvalid, "invalid token")
		return
	}

	types.WriteJSON(w, http.StatusOK, &verifyResponse{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Endpoint: claims.Endpoint,
		IssuedAt: claims.IssuedAt.Unix(),
		Expiry:   claims.ExpiresAt.Unix(),
		OrigIat:  claims.OrigIat,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "token.API.handleRefresh")
	defer span.End()

	req := new(refreshRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.RefreshToken == "" {
		types.WriteBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := a.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenInvalid) {
			types.WriteError(w, http.StatusUnauthorized, types.KindTokenInvalid, "invalid refresh token")
			return
		}
		a.logger.Errorf("refresh failed: %v", err)
		types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal server error")
		return
	}

	types.WriteJSON(w, http.StatusOK, pair)
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "token.API.handleRevoke")
	defer span.End()

	req := new(refreshRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.RefreshToken == "" {
		types.WriteBadRequest(w, "refresh_token is required")
		return
	}

	if err := a.service.Revoke(ctx, req.RefreshToken); err != nil {
		a.logger.Errorf("revoke failed: %v", err)
		types.WriteError(w, http.StatusInternalServerError, types.KindBadRequest, "internal server error")
		return
	}

	types.WriteJSON(w, http.StatusOK, &types.SuccessResponse{Success: true})
}
