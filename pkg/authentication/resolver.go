// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package authentication resolves the caller behind a bearer token and
// enforces the per-audience access rules.
package authentication

import (
	"context"
	"errors"
	"fmt"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

var ErrUnauthorized = errors.New("unauthorized")

var _ ResolverInterface = (*Resolver)(nil)

// Resolver verifies an access token and builds the principal once per
// request: subject existence, partition match and the capability set
// are all settled here, so downstream checks are plain map lookups.
type Resolver struct {
	verifier VerifierInterface
	accounts AccountStorageInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewResolver(
	verifier VerifierInterface,
	accounts AccountStorageInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Resolver {
	r := new(Resolver)

	r.verifier = verifier
	r.accounts = accounts
	r.tracer = tracer
	r.monitor = monitor
	r.logger = logger

	return r
}

// Resolve validates rawToken against the partition the request resolved
// to. A token minted for one partition never works on another, even
// when both are signed with the same key.
func (r *Resolver) Resolve(ctx context.Context, rawToken string, ref schema.Ref) (*types.Principal, error) {
	ctx, span := r.tracer.Start(ctx, "authentication.Resolver.Resolve")
	defer span.End()

	claims, err := r.verifier.Verify(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if claims.Schema != ref.String() {
		return nil, fmt.Errorf("%w: token scope mismatch", ErrUnauthorized)
	}

	ctx = schema.WithSchema(ctx, ref)

	user, err := r.accounts.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrUnauthorized)
		}
		return nil, err
	}

	slugs, err := r.accounts.ListRoleSlugs(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	capabilities := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		capabilities[slug] = true
	}

	return &types.Principal{
		ID:           user.ID,
		Email:        user.Email,
		Endpoint:     user.Endpoint,
		SchemaName:   ref.String(),
		Capabilities: capabilities,
	}, nil
}
