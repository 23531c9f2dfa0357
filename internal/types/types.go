// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"time"
)

// Tenant is the directory record for one isolated data partition. The
// partition itself is addressed by SchemaName, generated once at creation
// and never reused.
type Tenant struct {
	ID         string     `db:"id"`
	SchemaName string     `db:"schema_name"`
	Email      string     `db:"email"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at"`
}

// Domain binds a hostname to exactly one tenant. Builtin domains are
// provisioned with the tenant and cannot be edited or deleted by tenant
// admins. At most one domain per tenant is primary.
type Domain struct {
	ID        string     `db:"id"`
	TenantID  string     `db:"tenant_id"`
	Domain    string     `db:"domain"`
	IsPrimary bool       `db:"is_primary"`
	IsBuiltin bool       `db:"is_builtin"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// Contract is a validity window governing gated operations for a tenant.
// Nil bounds are open-ended.
type Contract struct {
	ID            string     `db:"id"`
	TenantID      string     `db:"tenant_id"`
	Slug          string     `db:"slug"`
	Type          string     `db:"type"`
	Note          string     `db:"note"`
	EffectiveFrom *time.Time `db:"effective_from"`
	ExpiredOn     *time.Time `db:"expired_on"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at"`
}

// User is an authenticatable principal stored inside a tenant partition.
// Email is unique per (endpoint, tenant) scope, not globally.
type User struct {
	ID            string     `db:"id"`
	Endpoint      string     `db:"endpoint"`
	Email         string     `db:"email"`
	Username      string     `db:"username"`
	PasswordHash  string     `db:"password_hash"`
	EmailVerified bool       `db:"email_verified"`
	LastLogin     *time.Time `db:"last_login"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at"`
}

// RefreshToken is the server-side record of an opaque rotating credential,
// stored in the owning user's tenant partition.
type RefreshToken struct {
	Token   string     `db:"token"`
	UserID  string     `db:"user_id"`
	Created time.Time  `db:"created"`
	Revoked *time.Time `db:"revoked"`
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.Revoked != nil
}

// IsExpired reports whether the token's lifetime, counted from the
// creation timestamp, has elapsed at instant now.
func (rt *RefreshToken) IsExpired(lifetime time.Duration, now time.Time) bool {
	return !now.Before(rt.Created.Add(lifetime))
}

// Capability names granted through role slugs.
const (
	CapabilityStaff = "staff"
	CapabilityHQ    = "hq"
)

// Principal is a resolved caller: the user behind a verified token plus
// the capability set computed from its role slugs at resolution time.
type Principal struct {
	ID           string
	Email        string
	Endpoint     string
	SchemaName   string
	Capabilities map[string]bool
}

func (p *Principal) Can(capability string) bool {
	return p != nil && p.Capabilities[capability]
}
