// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package contract gates tenant operations on an active contract.
package contract

import (
	"context"
	"time"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/tracing"
)

type StorageInterface interface {
	HasValidContract(ctx context.Context, schemaName string, now time.Time) (bool, error)
}

type Gate struct {
	storage StorageInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface

	nowFunc func() time.Time
}

func NewGate(
	s StorageInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Gate {
	g := new(Gate)

	g.storage = s
	g.tracer = tracer
	g.monitor = monitor
	g.logger = logger
	g.nowFunc = func() time.Time { return time.Now().UTC() }

	return g
}

// IsWithinValidityPeriod reports whether the tenant behind ref has at
// least one contract whose window covers the current instant. A null
// effective_from means "already effective", a null expired_on means
// "never expires". The shared scope is not subject to contracts.
func (g *Gate) IsWithinValidityPeriod(ctx context.Context, ref schema.Ref) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "contract.Gate.IsWithinValidityPeriod")
	defer span.End()

	if ref.IsPublic() {
		return true, nil
	}

	ok, err := g.storage.HasValidContract(ctx, ref.String(), g.nowFunc())
	if err != nil {
		g.logger.Errorf("contract lookup for %s failed: %v", ref, err)
		return false, err
	}

	return ok, nil
}
