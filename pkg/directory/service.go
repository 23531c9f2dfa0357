// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package directory resolves tenant selectors (hostnames or explicit
// scope headers) to the partition owning them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

// ErrTenantNotFound is returned when a selector matches no live domain.
// Surfaced to clients as a generic bad request.
var ErrTenantNotFound = errors.New("tenant not found")

type Service struct {
	storage StorageInterface

	websiteDomain    string
	accountSubdomain string

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewService(
	s StorageInterface,
	websiteDomain string,
	accountSubdomain string,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	return &Service{
		storage:          s,
		websiteDomain:    websiteDomain,
		accountSubdomain: accountSubdomain,
		tracer:           tracer,
		monitor:          monitor,
		logger:           logger,
	}
}

// Normalize lowercases a selector and strips scheme and port so that
// "HTTPS://Acme.Example.com:443" and "acme.example.com" resolve alike.
func Normalize(selector string) string {
	s := strings.TrimSpace(strings.ToLower(selector))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")

	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}

	return s
}

// PublicSelector is the reserved hostname addressing the shared scope,
// e.g. "account.example.com" for website domain "example.com".
func (s *Service) PublicSelector() string {
	return s.accountSubdomain + "." + s.websiteDomain
}

// Resolve maps a selector to the partition owning it. The reserved
// account host resolves to the shared scope; anything else must match a
// live domain record.
func (s *Service) Resolve(ctx context.Context, selector string) (schema.Ref, error) {
	ctx, span := s.tracer.Start(ctx, "directory.Service.Resolve")
	defer span.End()

	host := Normalize(selector)
	if host == "" {
		return "", fmt.Errorf("%w: empty selector", ErrTenantNotFound)
	}

	if host == s.PublicSelector() {
		return schema.Public, nil
	}

	dom, err := s.storage.GetDomain(ctx, host)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrTenantNotFound, host)
		}
		return "", err
	}

	tenant, err := s.storage.GetTenantByID(ctx, dom.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Domain row outlived its tenant; treat as unresolvable.
			return "", fmt.Errorf("%w: %s", ErrTenantNotFound, host)
		}
		return "", err
	}

	return schema.NewRef(tenant.SchemaName)
}

// ResolveByEmail locates the tenant owning an account contact email.
// Website logins through the shared account host use it to find which
// partition to authenticate against; the oldest tenant wins.
func (s *Service) ResolveByEmail(ctx context.Context, email string) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "directory.Service.ResolveByEmail")
	defer span.End()

	tenant, err := s.storage.GetOldestTenantByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}

	return tenant, nil
}
