// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storagefake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/types"
)

var _ storage.DirectoryInterface = (*Directory)(nil)

// Directory is a thread-safe in-memory stand-in for the shared-scope
// storage: tenants, domains and contracts.
type Directory struct {
	mu        sync.Mutex
	tenants   map[string]*types.Tenant
	domains   map[string]*types.Domain
	contracts map[string]*types.Contract
}

func NewDirectory() *Directory {
	return &Directory{
		tenants:   make(map[string]*types.Tenant),
		domains:   make(map[string]*types.Domain),
		contracts: make(map[string]*types.Contract),
	}
}

func (d *Directory) CreateTenant(_ context.Context, t *types.Tenant) (*types.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *t
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	d.tenants[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (d *Directory) GetTenantByID(_ context.Context, id string) (*types.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tenants[id]
	if !ok || t.DeletedAt != nil {
		return nil, storage.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (d *Directory) GetTenantBySchema(_ context.Context, schemaName string) (*types.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range d.tenants {
		if t.DeletedAt == nil && t.SchemaName == schemaName {
			out := *t
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (d *Directory) GetOldestTenantByEmail(_ context.Context, email string) (*types.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var oldest *types.Tenant
	for _, t := range d.tenants {
		if t.DeletedAt != nil || !strings.EqualFold(t.Email, email) {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, storage.ErrNotFound
	}
	out := *oldest
	return &out, nil
}

func (d *Directory) TenantEmailExists(_ context.Context, email string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range d.tenants {
		if t.DeletedAt == nil && strings.EqualFold(t.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) ListTenants(_ context.Context) ([]*types.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*types.Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (d *Directory) SoftDeleteTenant(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tenants[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	return nil
}

func (d *Directory) RestoreTenant(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tenants[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.DeletedAt = nil
	return nil
}

func (d *Directory) HardDeleteTenant(_ context.Context, id string) (*types.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tenants[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *t
	delete(d.tenants, id)
	for domID, dom := range d.domains {
		if dom.TenantID == id {
			delete(d.domains, domID)
		}
	}
	for cID, c := range d.contracts {
		if c.TenantID == id {
			delete(d.contracts, cID)
		}
	}
	return &out, nil
}

func (d *Directory) UpdateTenantEmail(_ context.Context, scope storage.EmailScope, hqDomain, original, updated string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	onHQ := func(tenantID string) bool {
		for _, dom := range d.domains {
			if dom.TenantID == tenantID && dom.DeletedAt == nil && strings.HasSuffix(dom.Domain, hqDomain) {
				return true
			}
		}
		return false
	}

	var n int64
	for _, t := range d.tenants {
		if t.DeletedAt != nil || !strings.EqualFold(t.Email, original) {
			continue
		}
		switch scope {
		case storage.EmailScopeHQ:
			if !onHQ(t.ID) {
				continue
			}
		case storage.EmailScopeOrganization:
			if onHQ(t.ID) {
				continue
			}
		}
		t.Email = updated
		n++
	}
	return n, nil
}

func (d *Directory) GetDomain(_ context.Context, domain string) (*types.Domain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dom := range d.domains {
		if dom.DeletedAt == nil && strings.EqualFold(dom.Domain, domain) {
			out := *dom
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (d *Directory) GetDomainByID(_ context.Context, id string) (*types.Domain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dom, ok := d.domains[id]
	if !ok || dom.DeletedAt != nil {
		return nil, storage.ErrNotFound
	}
	out := *dom
	return &out, nil
}

func (d *Directory) DomainExists(_ context.Context, domain string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dom := range d.domains {
		if dom.DeletedAt == nil && strings.EqualFold(dom.Domain, domain) {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) ListDomainsByTenantID(_ context.Context, tenantID string) ([]*types.Domain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*types.Domain, 0)
	for _, dom := range d.domains {
		if dom.TenantID == tenantID && dom.DeletedAt == nil {
			c := *dom
			out = append(out, &c)
		}
	}
	return out, nil
}

func (d *Directory) CreateDomain(_ context.Context, dom *types.Domain) (*types.Domain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.domains {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Domain, dom.Domain) {
			return nil, storage.ErrDuplicateKey
		}
	}
	if dom.IsPrimary {
		d.demotePrimaries(dom.TenantID, dom.ID)
	}
	stored := *dom
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	d.domains[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (d *Directory) UpdateDomain(_ context.Context, dom *types.Domain) (*types.Domain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.domains[dom.ID]
	if !ok || existing.DeletedAt != nil {
		return nil, storage.ErrNotFound
	}
	if dom.IsPrimary {
		d.demotePrimaries(dom.TenantID, dom.ID)
	}
	existing.Domain = dom.Domain
	existing.IsPrimary = dom.IsPrimary
	out := *existing
	return &out, nil
}

func (d *Directory) demotePrimaries(tenantID, excludeID string) {
	for _, dom := range d.domains {
		if dom.TenantID == tenantID && dom.ID != excludeID {
			dom.IsPrimary = false
		}
	}
}

func (d *Directory) SoftDeleteDomain(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dom, ok := d.domains[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	dom.DeletedAt = &now
	return nil
}

func (d *Directory) RestoreDomain(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dom, ok := d.domains[id]
	if !ok {
		return storage.ErrNotFound
	}
	dom.DeletedAt = nil
	return nil
}

func (d *Directory) CreateContract(_ context.Context, c *types.Contract) (*types.Contract, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.contracts {
		if existing.DeletedAt == nil && existing.Slug == c.Slug {
			return nil, storage.ErrDuplicateKey
		}
	}
	stored := *c
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	d.contracts[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (d *Directory) ListContractsByTenantID(_ context.Context, tenantID string) ([]*types.Contract, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*types.Contract, 0)
	for _, c := range d.contracts {
		if c.TenantID == tenantID && c.DeletedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (d *Directory) ExpireContract(_ context.Context, id string, when time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.contracts[id]
	if !ok || c.DeletedAt != nil {
		return storage.ErrNotFound
	}
	t := when
	c.ExpiredOn = &t
	return nil
}

func (d *Directory) HasValidContract(_ context.Context, schemaName string, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var tenantID string
	for _, t := range d.tenants {
		if t.DeletedAt == nil && t.SchemaName == schemaName {
			tenantID = t.ID
			break
		}
	}
	if tenantID == "" {
		return false, nil
	}

	for _, c := range d.contracts {
		if c.TenantID != tenantID || c.DeletedAt != nil {
			continue
		}
		started := c.EffectiveFrom == nil || !c.EffectiveFrom.After(now)
		open := c.ExpiredOn == nil || c.ExpiredOn.After(now)
		if started && open {
			return true, nil
		}
	}
	return false, nil
}
