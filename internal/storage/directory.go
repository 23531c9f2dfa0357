// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/canonical/tenant-auth-service/internal/db"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

var _ DirectoryInterface = (*Directory)(nil)

const (
	tenantColumns   = "id, schema_name, email, created_at, updated_at, deleted_at"
	domainColumns   = "id, tenant_id, domain, is_primary, is_builtin, created_at, updated_at, deleted_at"
	contractColumns = "id, tenant_id, slug, type, note, effective_from, expired_on, created_at, updated_at, deleted_at"
)

// Directory stores tenants, domains and contracts in the shared partition.
type Directory struct {
	db db.DBClientInterface

	logger  logging.LoggerInterface
	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
}

func NewDirectory(c db.DBClientInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Directory {
	d := new(Directory)

	d.db = c

	d.logger = logger
	d.tracer = tracer
	d.monitor = monitor

	return d
}

func tenantCols() []string {
	return strings.Split(tenantColumns, ", ")
}

func (d *Directory) scanTenant(row sq.RowScanner) (*types.Tenant, error) {
	var t types.Tenant
	err := row.Scan(&t.ID, &t.SchemaName, &t.Email, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (d *Directory) CreateTenant(ctx context.Context, t *types.Tenant) (*types.Tenant, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.CreateTenant")
	defer span.End()

	id := t.ID
	if id == "" {
		uid, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate tenant ID: %w", err)
		}
		id = uid.String()
	}

	row := d.db.Statement(ctx).
		Insert("tenants").
		Columns("id", "schema_name", "email").
		Values(id, t.SchemaName, t.Email).
		Suffix("RETURNING " + tenantColumns).
		QueryRowContext(ctx)

	created, err := d.scanTenant(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to insert tenant: %w", err)
	}

	return created, nil
}

func (d *Directory) GetTenantByID(ctx context.Context, id string) (*types.Tenant, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.GetTenantByID")
	defer span.End()

	row := d.db.Statement(ctx).
		Select(tenantCols()...).
		From("tenants").
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		QueryRowContext(ctx)

	return d.scanTenant(row)
}

func (d *Directory) GetTenantBySchema(ctx context.Context, schemaName string) (*types.Tenant, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.GetTenantBySchema")
	defer span.End()

	row := d.db.Statement(ctx).
		Select(tenantCols()...).
		From("tenants").
		Where(sq.Eq{"schema_name": schemaName, "deleted_at": nil}).
		QueryRowContext(ctx)

	return d.scanTenant(row)
}

// GetOldestTenantByEmail returns the earliest-created live tenant holding
// the given contact email. Website logins use it to locate the partition
// owning an account email.
func (d *Directory) GetOldestTenantByEmail(ctx context.Context, email string) (*types.Tenant, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.GetOldestTenantByEmail")
	defer span.End()

	row := d.db.Statement(ctx).
		Select(tenantCols()...).
		From("tenants").
		Where(sq.Eq{"email": email, "deleted_at": nil}).
		OrderBy("created_at ASC").
		Limit(1).
		QueryRowContext(ctx)

	return d.scanTenant(row)
}

func (d *Directory) TenantEmailExists(ctx context.Context, email string) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.TenantEmailExists")
	defer span.End()

	var count int
	err := d.db.Statement(ctx).
		Select("COUNT(*)").
		From("tenants").
		Where(sq.Eq{"email": email, "deleted_at": nil}).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant email: %w", err)
	}

	return count > 0, nil
}

func (d *Directory) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.ListTenants")
	defer span.End()

	rows, err := d.db.Statement(ctx).
		Select(tenantCols()...).
		From("tenants").
		OrderBy("created_at ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*types.Tenant
	for rows.Next() {
		var t types.Tenant
		if err := rows.Scan(&t.ID, &t.SchemaName, &t.Email, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant rows: %w", err)
	}

	return tenants, nil
}

func (d *Directory) SoftDeleteTenant(ctx context.Context, id string) error {
	return d.setTenantDeleted(ctx, id, true)
}

func (d *Directory) RestoreTenant(ctx context.Context, id string) error {
	return d.setTenantDeleted(ctx, id, false)
}

func (d *Directory) setTenantDeleted(ctx context.Context, id string, deleted bool) error {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.setTenantDeleted")
	defer span.End()

	var value interface{}
	var filter sq.Sqlizer = sq.NotEq{"deleted_at": nil}
	if deleted {
		value = time.Now().UTC()
		filter = sq.Eq{"deleted_at": nil}
	}

	res, err := d.db.Statement(ctx).
		Update("tenants").
		Set("deleted_at", value).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Where(filter).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// HardDeleteTenant removes the directory row outright, soft-deleted or
// not, and returns the removed tenant so the caller can tear down its
// partition.
func (d *Directory) HardDeleteTenant(ctx context.Context, id string) (*types.Tenant, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.HardDeleteTenant")
	defer span.End()

	row := d.db.Statement(ctx).
		Delete("tenants").
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + tenantColumns).
		QueryRowContext(ctx)

	return d.scanTenant(row)
}

// UpdateTenantEmail propagates an account email change across the tenant
// directory. Scope "hq" touches only tenants owning the hq domain,
// "organization" everything but, "all" every tenant.
func (d *Directory) UpdateTenantEmail(ctx context.Context, scope EmailScope, hqDomain, original, updated string) (int64, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.UpdateTenantEmail")
	defer span.End()

	query := d.db.Statement(ctx).
		Update("tenants").
		Set("email", updated).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"email": original})

	hqFilter := sq.Expr(
		"EXISTS (SELECT 1 FROM domains WHERE domains.tenant_id = tenants.id AND domains.domain = ? AND domains.deleted_at IS NULL)",
		hqDomain,
	)

	switch scope {
	case EmailScopeAll:
		// no extra filter
	case EmailScopeHQ:
		query = query.Where(hqFilter)
	case EmailScopeOrganization:
		query = query.Where(sq.Expr(
			"NOT EXISTS (SELECT 1 FROM domains WHERE domains.tenant_id = tenants.id AND domains.domain = ? AND domains.deleted_at IS NULL)",
			hqDomain,
		))
	default:
		return 0, fmt.Errorf("unknown email scope: %q", scope)
	}

	res, err := query.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to update tenant emails: %w", err)
	}

	return res.RowsAffected()
}
