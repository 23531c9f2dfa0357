// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package token

import (
	"context"
	"time"

	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/types"
)

// AccountStorageInterface is the slice of account storage the token
// service needs. All calls run against the partition in the context.
type AccountStorageInterface interface {
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	SetLastLogin(ctx context.Context, id string, when time.Time) error

	CreateRefreshToken(ctx context.Context, userID, token string, now time.Time) (*types.RefreshToken, error)
	GetRefreshToken(ctx context.Context, token string) (*types.RefreshToken, error)
	TouchRefreshToken(ctx context.Context, token string, now time.Time) error
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) error
	RotateRefreshToken(ctx context.Context, oldToken, newToken, userID string, now time.Time) (*types.RefreshToken, error)
}

type ServiceInterface interface {
	Issue(ctx context.Context, user *types.User, ref schema.Ref) (*Pair, error)
	Verify(tokenString string) (*Claims, error)
	Refresh(ctx context.Context, refreshToken string) (*Pair, error)
	Revoke(ctx context.Context, refreshToken string) error
}
