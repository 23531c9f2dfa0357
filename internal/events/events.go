// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package events carries auth domain events to an injected collector.
// Emission is synchronous but isolated: a panicking or failing observer
// never fails the operation that emitted the event.
package events

import (
	"context"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/schema"
)

type Kind string

const (
	SigninSuccess  Kind = "signin_success"
	SigninFail     Kind = "signin_fail"
	TokenIssued    Kind = "token_issued"
	TokenRefreshed Kind = "token_refreshed"
	TokenRevoked   Kind = "token_revoked"
)

// Event is one auth occurrence inside a tenant partition.
type Event struct {
	Kind   Kind
	UserID string
	Schema schema.Ref
}

type EmitterInterface interface {
	Emit(ctx context.Context, e Event)
}

type ObserverFunc func(ctx context.Context, e Event)

var _ EmitterInterface = (*Emitter)(nil)

// Emitter fans an event out to its observers.
type Emitter struct {
	observers []ObserverFunc
	logger    logging.LoggerInterface
}

func NewEmitter(logger logging.LoggerInterface, observers ...ObserverFunc) *Emitter {
	return &Emitter{
		observers: observers,
		logger:    logger,
	}
}

func (e *Emitter) Emit(ctx context.Context, event Event) {
	for _, observe := range e.observers {
		e.dispatch(ctx, observe, event)
	}
}

func (e *Emitter) dispatch(ctx context.Context, observe ObserverFunc, event Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("event observer panicked on %s: %v", event.Kind, r)
		}
	}()

	observe(ctx, event)
}

// AuditObserver logs every event; the default collector.
func AuditObserver(logger logging.LoggerInterface) ObserverFunc {
	return func(_ context.Context, e Event) {
		logger.Infof("event=%s user=%s schema=%s", e.Kind, e.UserID, e.Schema)
	}
}

var _ EmitterInterface = (*NoopEmitter)(nil)

type NoopEmitter struct{}

func (*NoopEmitter) Emit(context.Context, Event) {}

func NewNoopEmitter() *NoopEmitter {
	return new(NoopEmitter)
}
