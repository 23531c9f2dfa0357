// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package storagefake holds in-memory storage implementations for tests.
package storagefake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/types"
)

var _ storage.AccountInterface = (*Account)(nil)

type partition struct {
	users         map[string]*types.User
	roles         map[string]map[string]bool
	refreshTokens map[string]*types.RefreshToken
}

func newPartition() *partition {
	return &partition{
		users:         make(map[string]*types.User),
		roles:         make(map[string]map[string]bool),
		refreshTokens: make(map[string]*types.RefreshToken),
	}
}

// Account is a thread-safe in-memory stand-in for the account storage,
// keyed by the partition ref carried in the context.
type Account struct {
	mu         sync.Mutex
	partitions map[schema.Ref]*partition
}

func NewAccount(refs ...schema.Ref) *Account {
	a := &Account{partitions: make(map[schema.Ref]*partition)}
	for _, ref := range refs {
		a.partitions[ref] = newPartition()
	}
	return a
}

func (a *Account) partition(ctx context.Context) *partition {
	ref, err := schema.MustFromContext(ctx)
	if err != nil {
		panic(err)
	}
	p, ok := a.partitions[ref]
	if !ok {
		panic(fmt.Sprintf("no such partition: %s", ref))
	}
	return p
}

func (a *Account) ProvisionSchema(_ context.Context, ref schema.Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.partitions[ref]; ok {
		return storage.ErrDuplicateKey
	}
	a.partitions[ref] = newPartition()
	return nil
}

func (a *Account) DropSchema(_ context.Context, ref schema.Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.partitions, ref)
	return nil
}

func (a *Account) HasPartition(ref schema.Ref) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.partitions[ref]
	return ok
}

func (a *Account) CreateUser(ctx context.Context, u *types.User) (*types.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.partition(ctx)
	for _, existing := range p.users {
		if existing.DeletedAt == nil &&
			existing.Endpoint == u.Endpoint &&
			strings.EqualFold(existing.Email, u.Email) {
			return nil, storage.ErrDuplicateKey
		}
	}

	stored := *u
	p.users[u.ID] = &stored
	out := stored
	return &out, nil
}

func (a *Account) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.partition(ctx).users[id]
	if !ok || u.DeletedAt != nil {
		return nil, storage.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (a *Account) GetUserByEmail(ctx context.Context, endpoint, email string) (*types.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, u := range a.partition(ctx).users {
		if u.DeletedAt == nil && u.Endpoint == endpoint && strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (a *Account) EmailInUse(ctx context.Context, endpoint, email, excludeUserID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, u := range a.partition(ctx).users {
		if u.ID == excludeUserID || u.DeletedAt != nil {
			continue
		}
		if u.Endpoint == endpoint && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (a *Account) UpdateUserEmail(ctx context.Context, id, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.partition(ctx).users[id]
	if !ok || u.DeletedAt != nil {
		return storage.ErrNotFound
	}
	u.Email = email
	return nil
}

func (a *Account) SetLastLogin(ctx context.Context, id string, when time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.partition(ctx).users[id]
	if !ok {
		return storage.ErrNotFound
	}
	t := when
	u.LastLogin = &t
	return nil
}

func (a *Account) SoftDeleteUser(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.partition(ctx).users[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	return nil
}

func (a *Account) AssignRole(ctx context.Context, userID, slug string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.partition(ctx)
	if p.roles[userID] == nil {
		p.roles[userID] = make(map[string]bool)
	}
	p.roles[userID][slug] = true
	return nil
}

func (a *Account) ListRoleSlugs(ctx context.Context, userID string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slugs := make([]string, 0)
	for slug := range a.partition(ctx).roles[userID] {
		slugs = append(slugs, slug)
	}
	return slugs, nil
}

func (a *Account) CreateRefreshToken(ctx context.Context, userID, token string, now time.Time) (*types.RefreshToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.partition(ctx)
	if _, ok := p.refreshTokens[token]; ok {
		return nil, storage.ErrDuplicateKey
	}
	rt := &types.RefreshToken{Token: token, UserID: userID, Created: now}
	p.refreshTokens[token] = rt
	out := *rt
	return &out, nil
}

func (a *Account) GetRefreshToken(ctx context.Context, token string) (*types.RefreshToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rt, ok := a.partition(ctx).refreshTokens[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *rt
	return &out, nil
}

func (a *Account) TouchRefreshToken(ctx context.Context, token string, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rt, ok := a.partition(ctx).refreshTokens[token]
	if !ok || rt.Revoked != nil {
		return storage.ErrNotFound
	}
	rt.Created = now
	return nil
}

func (a *Account) RevokeRefreshToken(ctx context.Context, token string, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rt, ok := a.partition(ctx).refreshTokens[token]
	if !ok || rt.Revoked != nil {
		return nil
	}
	t := now
	rt.Revoked = &t
	return nil
}

func (a *Account) RotateRefreshToken(ctx context.Context, oldToken, newToken, userID string, now time.Time) (*types.RefreshToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.partition(ctx)
	if rt, ok := p.refreshTokens[oldToken]; ok && rt.Revoked == nil {
		t := now
		rt.Revoked = &t
	}
	next := &types.RefreshToken{Token: newToken, UserID: userID, Created: now}
	p.refreshTokens[newToken] = next
	out := *next
	return &out, nil
}
