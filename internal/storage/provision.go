// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"fmt"

	"github.com/canonical/tenant-auth-service/internal/schema"
)

// partitionDDL is executed once per tenant at provisioning time. Schema
// identifiers are validated by schema.NewRef before interpolation.
var partitionDDL = []string{
	`CREATE SCHEMA %q`,
	`CREATE TABLE %q.users (
		id UUID PRIMARY KEY,
		endpoint TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX users_endpoint_email_live ON %q.users (endpoint, LOWER(email)) WHERE deleted_at IS NULL`,
	`CREATE TABLE %q.user_roles (
		user_id UUID NOT NULL REFERENCES %q.users (id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		PRIMARY KEY (user_id, role)
	)`,
	`CREATE TABLE %q.refresh_tokens (
		token TEXT PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES %q.users (id) ON DELETE CASCADE,
		created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked TIMESTAMPTZ
	)`,
}

// ProvisionSchema creates a tenant partition and its tables. Runs inside
// the caller's transaction so a failed registration leaves nothing
// behind.
func (a *Accounts) ProvisionSchema(ctx context.Context, ref schema.Ref) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.ProvisionSchema")
	defer span.End()

	if ref.IsPublic() {
		return fmt.Errorf("%w: cannot provision the shared partition", schema.ErrInvalidRef)
	}

	for _, stmt := range partitionDDL {
		if err := a.db.Exec(ctx, interpolateSchema(stmt, ref)); err != nil {
			return fmt.Errorf("failed to provision schema %s: %w", ref, err)
		}
	}

	return nil
}

// DropSchema tears a partition down. Only hard tenant deletion calls it.
func (a *Accounts) DropSchema(ctx context.Context, ref schema.Ref) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.DropSchema")
	defer span.End()

	if ref.IsPublic() {
		return fmt.Errorf("%w: cannot drop the shared partition", schema.ErrInvalidRef)
	}

	stmt := interpolateSchema(`DROP SCHEMA IF EXISTS %q CASCADE`, ref)
	if err := a.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", ref, err)
	}

	return nil
}

func interpolateSchema(stmt string, ref schema.Ref) string {
	args := make([]interface{}, 0, 2)
	for i := 0; i < countVerbs(stmt); i++ {
		args = append(args, ref.String())
	}
	return fmt.Sprintf(stmt, args...)
}

func countVerbs(stmt string) int {
	n := 0
	for i := 0; i+1 < len(stmt); i++ {
		if stmt[i] == '%' && stmt[i+1] == 'q' {
			n++
		}
	}
	return n
}
