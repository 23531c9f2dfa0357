// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenant

import (
	"context"
	"time"

	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

type ServiceInterface interface {
	Register(ctx context.Context, r RegistrationRequest) (*RegistrationResult, error)
	CheckEmailAvailable(ctx context.Context, email string) (bool, error)
	UpdateEmail(ctx context.Context, scope storage.EmailScope, original, updated string) (int64, error)

	ListDomains(ctx context.Context, tenantID string) ([]*types.Domain, error)
	CreateDomain(ctx context.Context, tenantID, domain string, isPrimary bool) (*types.Domain, error)
	UpdateDomain(ctx context.Context, tenantID, domainID, domain string, isPrimary bool) (*types.Domain, error)
	DeleteDomain(ctx context.Context, tenantID, domainID string) error
	RestoreDomain(ctx context.Context, tenantID, domainID string) error

	ListTenants(ctx context.Context) ([]*types.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
	RestoreTenant(ctx context.Context, id string) error
	PurgeTenant(ctx context.Context, id string) error
	AddContract(ctx context.Context, tenantID, slug, contractType, note string, effectiveFrom, expiredOn *time.Time) (*types.Contract, error)
	ExpireContract(ctx context.Context, id string, when time.Time) error
	TenantBySchema(ctx context.Context, ref schema.Ref) (*types.Tenant, error)
}

// TokenIssuerInterface mints the first credential pair for a freshly
// registered owner account.
type TokenIssuerInterface interface {
	Issue(ctx context.Context, user *types.User, ref schema.Ref) (*token.Pair, error)
}

// TxRunnerInterface is the transactional boundary registration runs in.
type TxRunnerInterface interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
}
