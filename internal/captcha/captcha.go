// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package captcha gates anonymous entry points behind an external
// verification service. The outbound call carries a hard timeout and any
// failure (transport, decode, low score) rejects the enclosing operation.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/tracing"
)

type VerifierInterface interface {
	Verify(ctx context.Context, token, action string) (bool, error)
}

type Config struct {
	URL      string
	Secret   string
	Timeout  time.Duration
	MinScore float64
}

var _ VerifierInterface = (*Verifier)(nil)

type Verifier struct {
	client *http.Client
	cfg    Config

	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

type verifyResponse struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
	Action  string  `json:"action"`
}

// Verify fails closed: an unreachable or misbehaving captcha service is
// reported as "not verified", never as success.
func (v *Verifier) Verify(ctx context.Context, token, action string) (bool, error) {
	ctx, span := v.tracer.Start(ctx, "captcha.Verifier.Verify")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verification call failed: %w", err)
	}
	defer resp.Body.Close()

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode captcha response: %w", err)
	}

	if !body.Success {
		return false, nil
	}
	if body.Action != "" && action != "" && body.Action != action {
		v.logger.Debugf("captcha action mismatch: got %q want %q", body.Action, action)
		return false, nil
	}

	return body.Score >= v.cfg.MinScore, nil
}

func NewVerifier(cfg Config, tracer tracing.TracingInterface, logger logging.LoggerInterface) *Verifier {
	v := new(Verifier)

	v.cfg = cfg
	v.client = &http.Client{Timeout: cfg.Timeout}

	v.tracer = tracer
	v.logger = logger

	return v
}

var _ VerifierInterface = (*NoopVerifier)(nil)

// NoopVerifier accepts everything; used when captcha is disabled.
type NoopVerifier struct{}

func (*NoopVerifier) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

func NewNoopVerifier() *NoopVerifier {
	return new(NoopVerifier)
}
