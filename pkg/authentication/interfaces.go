// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"

	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

// ResolverInterface turns a raw bearer token into the caller it stands
// for, scoped to the partition the request resolved to.
type ResolverInterface interface {
	Resolve(ctx context.Context, rawToken string, ref schema.Ref) (*types.Principal, error)
}

// AccountStorageInterface is the slice of account storage needed to
// confirm the subject still exists and to load its role slugs.
type AccountStorageInterface interface {
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	ListRoleSlugs(ctx context.Context, userID string) ([]string, error)
}

// VerifierInterface is the token verification boundary.
type VerifierInterface interface {
	Verify(tokenString string) (*token.Claims, error)
}
