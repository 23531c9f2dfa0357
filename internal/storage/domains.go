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

	"github.com/canonical/tenant-auth-service/internal/types"
)

func domainCols() []string {
	return strings.Split(domainColumns, ", ")
}

func (d *Directory) scanDomain(row sq.RowScanner) (*types.Domain, error) {
	var dom types.Domain
	err := row.Scan(&dom.ID, &dom.TenantID, &dom.Domain, &dom.IsPrimary, &dom.IsBuiltin, &dom.CreatedAt, &dom.UpdatedAt, &dom.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &dom, nil
}

func (d *Directory) GetDomain(ctx context.Context, domain string) (*types.Domain, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.GetDomain")
	defer span.End()

	row := d.db.Statement(ctx).
		Select(domainCols()...).
		From("domains").
		Where(sq.Eq{"domain": domain, "deleted_at": nil}).
		QueryRowContext(ctx)

	return d.scanDomain(row)
}

func (d *Directory) GetDomainByID(ctx context.Context, id string) (*types.Domain, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.GetDomainByID")
	defer span.End()

	row := d.db.Statement(ctx).
		Select(domainCols()...).
		From("domains").
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		QueryRowContext(ctx)

	return d.scanDomain(row)
}

func (d *Directory) DomainExists(ctx context.Context, domain string) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.DomainExists")
	defer span.End()

	var count int
	err := d.db.Statement(ctx).
		Select("COUNT(*)").
		From("domains").
		Where(sq.Eq{"domain": domain, "deleted_at": nil}).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check domain: %w", err)
	}

	return count > 0, nil
}

func (d *Directory) ListDomainsByTenantID(ctx context.Context, tenantID string) ([]*types.Domain, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.ListDomainsByTenantID")
	defer span.End()

	rows, err := d.db.Statement(ctx).
		Select(domainCols()...).
		From("domains").
		Where(sq.Eq{"tenant_id": tenantID, "deleted_at": nil}).
		OrderBy("domain ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []*types.Domain
	for rows.Next() {
		var dom types.Domain
		if err := rows.Scan(&dom.ID, &dom.TenantID, &dom.Domain, &dom.IsPrimary, &dom.IsBuiltin, &dom.CreatedAt, &dom.UpdatedAt, &dom.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, &dom)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domain rows: %w", err)
	}

	return domains, nil
}

// CreateDomain inserts a domain. When the new domain is primary, every
// other primary of the same tenant is demoted first, inside the caller's
// transaction, so the single-primary invariant holds at commit with no
// window of two primaries.
func (d *Directory) CreateDomain(ctx context.Context, dom *types.Domain) (*types.Domain, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.CreateDomain")
	defer span.End()

	id := dom.ID
	if id == "" {
		uid, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate domain ID: %w", err)
		}
		id = uid.String()
	}

	if dom.IsPrimary {
		if err := d.demotePrimaries(ctx, dom.TenantID, ""); err != nil {
			return nil, err
		}
	}

	row := d.db.Statement(ctx).
		Insert("domains").
		Columns("id", "tenant_id", "domain", "is_primary", "is_builtin").
		Values(id, dom.TenantID, dom.Domain, dom.IsPrimary, dom.IsBuiltin).
		Suffix("RETURNING " + domainColumns).
		QueryRowContext(ctx)

	created, err := d.scanDomain(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		if IsForeignKeyViolation(err) {
			return nil, ErrForeignKeyViolation
		}
		return nil, fmt.Errorf("failed to insert domain: %w", err)
	}

	return created, nil
}

func (d *Directory) UpdateDomain(ctx context.Context, dom *types.Domain) (*types.Domain, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.UpdateDomain")
	defer span.End()

	if dom.IsPrimary {
		if err := d.demotePrimaries(ctx, dom.TenantID, dom.ID); err != nil {
			return nil, err
		}
	}

	row := d.db.Statement(ctx).
		Update("domains").
		Set("domain", dom.Domain).
		Set("is_primary", dom.IsPrimary).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": dom.ID, "tenant_id": dom.TenantID, "deleted_at": nil}).
		Suffix("RETURNING " + domainColumns).
		QueryRowContext(ctx)

	updated, err := d.scanDomain(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}

	return updated, nil
}

func (d *Directory) demotePrimaries(ctx context.Context, tenantID, excludeID string) error {
	query := d.db.Statement(ctx).
		Update("domains").
		Set("is_primary", false).
		Where(sq.Eq{"tenant_id": tenantID, "is_primary": true})

	if excludeID != "" {
		query = query.Where(sq.NotEq{"id": excludeID})
	}

	if _, err := query.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to demote primary domains: %w", err)
	}

	return nil
}

// SoftDeleteDomain refuses to remove the tenant's primary domain.
func (d *Directory) SoftDeleteDomain(ctx context.Context, id string) error {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.SoftDeleteDomain")
	defer span.End()

	res, err := d.db.Statement(ctx).
		Update("domains").
		Set("deleted_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "is_primary": false, "deleted_at": nil}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete domain: %w", err)
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

func (d *Directory) RestoreDomain(ctx context.Context, id string) error {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.RestoreDomain")
	defer span.End()

	res, err := d.db.Statement(ctx).
		Update("domains").
		Set("deleted_at", nil).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"deleted_at": nil}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore domain: %w", err)
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
