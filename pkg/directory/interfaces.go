// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package directory

import (
	"context"

	"github.com/canonical/tenant-auth-service/internal/types"
)

type StorageInterface interface {
	GetDomain(ctx context.Context, domain string) (*types.Domain, error)
	GetTenantByID(ctx context.Context, id string) (*types.Tenant, error)
	GetOldestTenantByEmail(ctx context.Context, email string) (*types.Tenant, error)
}
