// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canonical/tenant-auth-service/internal/logging"
)

func TestEmitterDeliversToAllObservers(t *testing.T) {
	var got []Kind
	collect := func(_ context.Context, e Event) {
		got = append(got, e.Kind)
	}

	e := NewEmitter(logging.NewNoopLogger(), collect, collect)
	e.Emit(context.Background(), Event{Kind: SigninSuccess, UserID: "u1"})

	assert.Equal(t, []Kind{SigninSuccess, SigninSuccess}, got)
}

func TestEmitterIsolatesPanickingObserver(t *testing.T) {
	delivered := false

	e := NewEmitter(
		logging.NewNoopLogger(),
		func(context.Context, Event) { panic("observer down") },
		func(context.Context, Event) { delivered = true },
	)

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), Event{Kind: SigninFail, UserID: "u1"})
	})
	assert.True(t, delivered, "later observers still run after a panic")
}
