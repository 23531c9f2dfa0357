// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

type fakeStorage struct {
	domains map[string]*types.Domain
	tenants map[string]*types.Tenant
}

func (f *fakeStorage) GetDomain(_ context.Context, domain string) (*types.Domain, error) {
	if d, ok := f.domains[domain]; ok {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStorage) GetTenantByID(_ context.Context, id string) (*types.Tenant, error) {
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStorage) GetOldestTenantByEmail(_ context.Context, email string) (*types.Tenant, error) {
	var oldest *types.Tenant
	for _, t := range f.tenants {
		if t.Email != email {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, storage.ErrNotFound
	}
	return oldest, nil
}

func newService(s StorageInterface) *Service {
	return NewService(s, "example.com", "account", tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{"acme.example.com", "acme.example.com"},
		{"ACME.Example.COM", "acme.example.com"},
		{"https://acme.example.com/", "acme.example.com"},
		{"acme.example.com:8443", "acme.example.com"},
		{"  acme.example.com  ", "acme.example.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.input))
		})
	}
}

func TestResolve(t *testing.T) {
	s := newService(&fakeStorage{
		domains: map[string]*types.Domain{
			"acme.example.com": {ID: "d1", TenantID: "t1", Domain: "acme.example.com", IsPrimary: true},
		},
		tenants: map[string]*types.Tenant{
			"t1": {ID: "t1", SchemaName: "t0b7339a2a83c4bb0a1ddbff2c6b718f1"},
		},
	})

	testCases := []struct {
		name     string
		selector string
		want     schema.Ref
		wantErr  error
	}{
		{"matching domain", "acme.example.com", "t0b7339a2a83c4bb0a1ddbff2c6b718f1", nil},
		{"case and port normalized", "ACME.example.com:443", "t0b7339a2a83c4bb0a1ddbff2c6b718f1", nil},
		{"reserved account host", "account.example.com", schema.Public, nil},
		{"unknown host", "ghost.example.com", "", ErrTenantNotFound},
		{"empty selector", "", "", ErrTenantNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := s.Resolve(context.Background(), tc.selector)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, ref)
		})
	}
}

func TestResolveByEmail(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	s := newService(&fakeStorage{
		tenants: map[string]*types.Tenant{
			"t1": {ID: "t1", SchemaName: "ta", Email: "a@acme.com", CreatedAt: late},
			"t2": {ID: "t2", SchemaName: "tb", Email: "a@acme.com", CreatedAt: early},
		},
	})

	tenant, err := s.ResolveByEmail(context.Background(), "a@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "t2", tenant.ID, "oldest tenant wins")

	_, err = s.ResolveByEmail(context.Background(), "nobody@acme.com")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
