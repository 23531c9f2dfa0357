// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package authn verifies stored credentials inside a tenant partition.
package authn

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/canonical/tenant-auth-service/internal/events"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

// AccountStorageInterface is the slice of account storage used to check
// credentials and build the caller's capability set.
type AccountStorageInterface interface {
	GetUserByEmail(ctx context.Context, endpoint, email string) (*types.User, error)
	ListRoleSlugs(ctx context.Context, userID string) ([]string, error)
}

type AuthenticatorInterface interface {
	Authenticate(ctx context.Context, ref schema.Ref, endpoint, email, password string) (*types.Principal, error)
}

type Authenticator struct {
	accounts AccountStorageInterface
	emitter  events.EmitterInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAuthenticator(
	accounts AccountStorageInterface,
	emitter events.EmitterInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Authenticator {
	a := new(Authenticator)

	a.accounts = accounts
	a.emitter = emitter
	a.tracer = tracer
	a.monitor = monitor
	a.logger = logger

	return a
}

// Authenticate checks email+password against the partition behind ref.
// Any mismatch, unknown account included, returns (nil, nil): callers
// cannot tell a wrong password from a missing user. A failure event is
// emitted only when the account exists, so the audit trail can flag
// password guessing without recording probes for unknown addresses.
func (a *Authenticator) Authenticate(ctx context.Context, ref schema.Ref, endpoint, email, password string) (*types.Principal, error) {
	ctx, span := a.tracer.Start(ctx, "authn.Authenticator.Authenticate")
	defer span.End()

	ctx = schema.WithSchema(ctx, ref)

	user, err := a.accounts.GetUserByEmail(ctx, endpoint, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn comparable time so response latency does not leak
			// account existence.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, nil
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		a.emitter.Emit(ctx, events.Event{Kind: events.SigninFail, UserID: user.ID, Schema: ref})
		return nil, nil
	}

	slugs, err := a.accounts.ListRoleSlugs(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	capabilities := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		capabilities[slug] = true
	}

	a.emitter.Emit(ctx, events.Event{Kind: events.SigninSuccess, UserID: user.ID, Schema: ref})

	return &types.Principal{
		ID:           user.ID,
		Email:        user.Email,
		Endpoint:     user.Endpoint,
		SchemaName:   ref.String(),
		Capabilities: capabilities,
	}, nil
}

// HashPassword is the single place passwords are hashed, so cost stays
// uniform across registration and password changes.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// dummyHash is a valid bcrypt digest of an unguessable value, used only
// to equalize timing on unknown-account lookups.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

var _ AuthenticatorInterface = (*Authenticator)(nil)

// ErrPasswordTooShort guards the single password-strength rule applied
// at registration and password changes.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}
