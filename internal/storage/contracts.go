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

func contractCols() []string {
	return strings.Split(contractColumns, ", ")
}

func (d *Directory) scanContract(row sq.RowScanner) (*types.Contract, error) {
	var c types.Contract
	err := row.Scan(&c.ID, &c.TenantID, &c.Slug, &c.Type, &c.Note, &c.EffectiveFrom, &c.ExpiredOn, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (d *Directory) CreateContract(ctx context.Context, c *types.Contract) (*types.Contract, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.CreateContract")
	defer span.End()

	id := c.ID
	if id == "" {
		uid, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate contract ID: %w", err)
		}
		id = uid.String()
	}

	row := d.db.Statement(ctx).
		Insert("contracts").
		Columns("id", "tenant_id", "slug", "type", "note", "effective_from", "expired_on").
		Values(id, c.TenantID, c.Slug, c.Type, c.Note, c.EffectiveFrom, c.ExpiredOn).
		Suffix("RETURNING " + contractColumns).
		QueryRowContext(ctx)

	created, err := d.scanContract(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		if IsForeignKeyViolation(err) {
			return nil, ErrForeignKeyViolation
		}
		return nil, fmt.Errorf("failed to insert contract: %w", err)
	}

	return created, nil
}

func (d *Directory) ListContractsByTenantID(ctx context.Context, tenantID string) ([]*types.Contract, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.ListContractsByTenantID")
	defer span.End()

	rows, err := d.db.Statement(ctx).
		Select(contractCols()...).
		From("contracts").
		Where(sq.Eq{"tenant_id": tenantID, "deleted_at": nil}).
		OrderBy("slug ASC").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*types.Contract
	for rows.Next() {
		var c types.Contract
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Slug, &c.Type, &c.Note, &c.EffectiveFrom, &c.ExpiredOn, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract rows: %w", err)
	}

	return contracts, nil
}

func (d *Directory) ExpireContract(ctx context.Context, id string, when time.Time) error {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.ExpireContract")
	defer span.End()

	res, err := d.db.Statement(ctx).
		Update("contracts").
		Set("expired_on", when.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to expire contract: %w", err)
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

// HasValidContract reports whether any live contract of the tenant owning
// schemaName is inside its validity window at instant now. Nil bounds are
// open-ended.
func (d *Directory) HasValidContract(ctx context.Context, schemaName string, now time.Time) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "storage.Directory.HasValidContract")
	defer span.End()

	now = now.UTC()

	var count int
	err := d.db.Statement(ctx).
		Select("COUNT(*)").
		From("contracts c").
		Join("tenants t ON c.tenant_id = t.id").
		Where(sq.Eq{"t.schema_name": schemaName}).
		Where(sq.Eq{"c.deleted_at": nil}).
		Where(sq.Or{sq.Eq{"c.effective_from": nil}, sq.LtOrEq{"c.effective_from": now}}).
		Where(sq.Or{sq.Eq{"c.expired_on": nil}, sq.Gt{"c.expired_on": now}}).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check contract validity: %w", err)
	}

	return count > 0, nil
}
