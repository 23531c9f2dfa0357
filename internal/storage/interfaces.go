// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"time"

	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/types"
)

// EmailScope selects which tenants a directory email update applies to.
type EmailScope string

const (
	EmailScopeAll          EmailScope = "all"
	EmailScopeHQ           EmailScope = "hq"
	EmailScopeOrganization EmailScope = "organization"
)

// DirectoryInterface covers the shared partition: the tenant directory,
// its domains and contracts.
type DirectoryInterface interface {
	CreateTenant(ctx context.Context, t *types.Tenant) (*types.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (*types.Tenant, error)
	GetTenantBySchema(ctx context.Context, schemaName string) (*types.Tenant, error)
	GetOldestTenantByEmail(ctx context.Context, email string) (*types.Tenant, error)
	TenantEmailExists(ctx context.Context, email string) (bool, error)
	ListTenants(ctx context.Context) ([]*types.Tenant, error)
	SoftDeleteTenant(ctx context.Context, id string) error
	RestoreTenant(ctx context.Context, id string) error
	HardDeleteTenant(ctx context.Context, id string) (*types.Tenant, error)
	UpdateTenantEmail(ctx context.Context, scope EmailScope, hqDomain, original, updated string) (int64, error)

	GetDomain(ctx context.Context, domain string) (*types.Domain, error)
	GetDomainByID(ctx context.Context, id string) (*types.Domain, error)
	DomainExists(ctx context.Context, domain string) (bool, error)
	ListDomainsByTenantID(ctx context.Context, tenantID string) ([]*types.Domain, error)
	CreateDomain(ctx context.Context, d *types.Domain) (*types.Domain, error)
	UpdateDomain(ctx context.Context, d *types.Domain) (*types.Domain, error)
	SoftDeleteDomain(ctx context.Context, id string) error
	RestoreDomain(ctx context.Context, id string) error

	CreateContract(ctx context.Context, c *types.Contract) (*types.Contract, error)
	ListContractsByTenantID(ctx context.Context, tenantID string) ([]*types.Contract, error)
	ExpireContract(ctx context.Context, id string, when time.Time) error
	HasValidContract(ctx context.Context, schemaName string, now time.Time) (bool, error)
}

// AccountInterface covers tenant-partitioned tables. Every call reads the
// active partition from the context; calls without a scope fail.
type AccountInterface interface {
	ProvisionSchema(ctx context.Context, ref schema.Ref) error
	DropSchema(ctx context.Context, ref schema.Ref) error

	CreateUser(ctx context.Context, u *types.User) (*types.User, error)
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	GetUserByEmail(ctx context.Context, endpoint, email string) (*types.User, error)
	EmailInUse(ctx context.Context, endpoint, email, excludeUserID string) (bool, error)
	UpdateUserEmail(ctx context.Context, id, email string) error
	SetLastLogin(ctx context.Context, id string, when time.Time) error
	SoftDeleteUser(ctx context.Context, id string) error

	AssignRole(ctx context.Context, userID, slug string) error
	ListRoleSlugs(ctx context.Context, userID string) ([]string, error)

	CreateRefreshToken(ctx context.Context, userID, token string, now time.Time) (*types.RefreshToken, error)
	GetRefreshToken(ctx context.Context, token string) (*types.RefreshToken, error)
	TouchRefreshToken(ctx context.Context, token string, now time.Time) error
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) error
	RotateRefreshToken(ctx context.Context, oldToken, newToken, userID string, now time.Time) (*types.RefreshToken, error)
}
