// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package token mints, verifies and refreshes the two credentials a
// signed-in user holds: a short-lived signed access token and an opaque
// refresh token stored server-side in the user's partition.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/canonical/tenant-auth-service/internal/events"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

var (
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
)

// Pair is what a successful issue or refresh hands back to the client.
type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Config carries the signing material and lifetimes for the service.
type Config struct {
	SecretKey          []byte
	AccessLifetime     time.Duration
	RefreshLifetime    time.Duration
	ReuseRefreshTokens bool
}

type Service struct {
	accounts AccountStorageInterface
	emitter  events.EmitterInterface

	secret          []byte
	accessLifetime  time.Duration
	refreshLifetime time.Duration
	reuse           bool

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface

	nowFunc func() time.Time
}

func NewService(
	cfg Config,
	accounts AccountStorageInterface,
	emitter events.EmitterInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	s := new(Service)

	s.accounts = accounts
	s.emitter = emitter
	s.secret = cfg.SecretKey
	s.accessLifetime = cfg.AccessLifetime
	s.refreshLifetime = cfg.RefreshLifetime
	s.reuse = cfg.ReuseRefreshTokens
	s.tracer = tracer
	s.monitor = monitor
	s.logger = logger
	s.nowFunc = func() time.Time { return time.Now().UTC() }

	return s
}

// Issue signs an access token for user and persists a fresh refresh
// token in the partition behind ref. A user may hold several live
// refresh tokens at once, one per signed-in device.
func (s *Service) Issue(ctx context.Context, user *types.User, ref schema.Ref) (*Pair, error) {
	ctx, span := s.tracer.Start(ctx, "token.Service.Issue")
	defer span.End()

	now := s.nowFunc()

	access, err := s.sign(user, ref, now, now.Unix())
	if err != nil {
		return nil, err
	}

	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	if _, err := s.accounts.CreateRefreshToken(ctx, user.ID, refresh, now); err != nil {
		return nil, err
	}

	if err := s.accounts.SetLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.Event{Kind: events.TokenIssued, UserID: user.ID, Schema: ref})

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.accessLifetime),
	}, nil
}

// Verify parses and validates an access token. Expiry is reported
// distinctly from every other defect; a token is already invalid at the
// exact expiry instant.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := new(Claims)

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.nowFunc() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return claims, nil
}

// Refresh exchanges a live refresh token for a new pair. Under the
// reuse policy the same opaque value is kept and its window restarts;
// otherwise a new value is minted and the old one revoked. Unknown,
// revoked and expired tokens are indistinguishable to the caller.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Pair, error) {
	ctx, span := s.tracer.Start(ctx, "token.Service.Refresh")
	defer span.End()

	now := s.nowFunc()

	rt, err := s.accounts.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, err
	}

	if rt.IsRevoked() || rt.IsExpired(s.refreshLifetime, now) {
		return nil, ErrRefreshTokenInvalid
	}

	user, err := s.accounts.GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, err
	}

	ref, err := schema.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}

	access, err := s.sign(user, ref, now, rt.Created.Unix())
	if err != nil {
		return nil, err
	}

	next := refreshToken
	if s.reuse {
		if err := s.accounts.TouchRefreshToken(ctx, refreshToken, now); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Revoked between the read and the touch.
				return nil, ErrRefreshTokenInvalid
			}
			return nil, err
		}
	} else {
		next, err = newOpaqueToken()
		if err != nil {
			return nil, err
		}
		if _, err := s.accounts.RotateRefreshToken(ctx, refreshToken, next, user.ID, now); err != nil {
			return nil, err
		}
	}

	s.emitter.Emit(ctx, events.Event{Kind: events.TokenRefreshed, UserID: user.ID, Schema: ref})

	return &Pair{
		AccessToken:  access,
		RefreshToken: next,
		ExpiresAt:    now.Add(s.accessLifetime),
	}, nil
}

// Revoke invalidates a refresh token. Revoking an unknown or already
// revoked token succeeds.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	ctx, span := s.tracer.Start(ctx, "token.Service.Revoke")
	defer span.End()

	if err := s.accounts.RevokeRefreshToken(ctx, refreshToken, s.nowFunc()); err != nil {
		return err
	}

	ref, _ := schema.FromContext(ctx)
	s.emitter.Emit(ctx, events.Event{Kind: events.TokenRevoked, Schema: ref})

	return nil
}

func (s *Service) sign(user *types.User, ref schema.Ref, now time.Time, origIat int64) (string, error) {
	claims := Claims{
		Email:    user.Email,
		Endpoint: user.Endpoint,
		Schema:   ref.String(),
		OrigIat:  origIat,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}

	return signed, nil
}

func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
