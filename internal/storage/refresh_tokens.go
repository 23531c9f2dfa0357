// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/canonical/tenant-auth-service/internal/types"
)

func (a *Accounts) scanRefreshToken(row sq.RowScanner) (*types.RefreshToken, error) {
	var rt types.RefreshToken
	err := row.Scan(&rt.Token, &rt.UserID, &rt.Created, &rt.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

func (a *Accounts) CreateRefreshToken(ctx context.Context, userID, token string, now time.Time) (*types.RefreshToken, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.CreateRefreshToken")
	defer span.End()

	tokens, err := table(ctx, "refresh_tokens")
	if err != nil {
		return nil, err
	}

	row := a.db.Statement(ctx).
		Insert(tokens).
		Columns("token", "user_id", "created").
		Values(token, userID, now.UTC()).
		Suffix("RETURNING token, user_id, created, revoked").
		QueryRowContext(ctx)

	created, err := a.scanRefreshToken(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to insert refresh token: %w", err)
	}

	return created, nil
}

func (a *Accounts) GetRefreshToken(ctx context.Context, token string) (*types.RefreshToken, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.GetRefreshToken")
	defer span.End()

	tokens, err := table(ctx, "refresh_tokens")
	if err != nil {
		return nil, err
	}

	row := a.db.Statement(ctx).
		Select("token", "user_id", "created", "revoked").
		From(tokens).
		Where(sq.Eq{"token": token}).
		QueryRowContext(ctx)

	return a.scanRefreshToken(row)
}

// TouchRefreshToken resets the creation timestamp of a live token,
// extending its validity window under the reuse policy.
func (a *Accounts) TouchRefreshToken(ctx context.Context, token string, now time.Time) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.TouchRefreshToken")
	defer span.End()

	tokens, err := table(ctx, "refresh_tokens")
	if err != nil {
		return err
	}

	res, err := a.db.Statement(ctx).
		Update(tokens).
		Set("created", now.UTC()).
		Where(sq.Eq{"token": token, "revoked": nil}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to touch refresh token: %w", err)
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

// RevokeRefreshToken is idempotent: revoking an already revoked or
// unknown token succeeds without touching the stored revocation time.
func (a *Accounts) RevokeRefreshToken(ctx context.Context, token string, now time.Time) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.RevokeRefreshToken")
	defer span.End()

	tokens, err := table(ctx, "refresh_tokens")
	if err != nil {
		return err
	}

	_, err = a.db.Statement(ctx).
		Update(tokens).
		Set("revoked", now.UTC()).
		Where(sq.Eq{"token": token, "revoked": nil}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return nil
}

// RotateRefreshToken revokes the old token and inserts its replacement in
// one statement sequence; callers run it inside a transaction so a crash
// cannot leave the principal without a live token.
func (a *Accounts) RotateRefreshToken(ctx context.Context, oldToken, newToken, userID string, now time.Time) (*types.RefreshToken, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.RotateRefreshToken")
	defer span.End()

	if err := a.RevokeRefreshToken(ctx, oldToken, now); err != nil {
		return nil, err
	}

	return a.CreateRefreshToken(ctx, userID, newToken, now)
}
