// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package types defines the stable JSON envelopes every endpoint speaks.
// Rejected operations always carry a kind and a message and nothing else;
// internal identifiers and stack traces never leave the process.
package types

import (
	"encoding/json"
	"net/http"
)

// Error kinds surfaced to clients.
const (
	KindBadRequest           = "bad_request"
	KindValidationError      = "validation_error"
	KindAuthenticationFailed = "authentication_failed"
	KindTokenInvalid         = "token_invalid"
	KindPermissionDenied     = "permission_denied"
)

// GenericCredentialsMessage is returned for every credential failure so
// responses cannot be used to enumerate accounts.
const GenericCredentialsMessage = "please enter valid credentials"

type ErrorResponse struct {
	Status  int    `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, kind, message string) {
	WriteJSON(w, status, &ErrorResponse{Status: status, Kind: kind, Message: message})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, KindBadRequest, message)
}

func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, KindValidationError, message)
}

func WriteAuthenticationFailed(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, KindAuthenticationFailed, GenericCredentialsMessage)
}

func WritePermissionDenied(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, KindPermissionDenied, "this operation is not allowed")
}
