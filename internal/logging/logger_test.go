// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package logging

import (
	"testing"
)

func TestDebugLogger(t *testing.T) {
	l := NewLogger("DEBUG")
	if l == nil {
		t.Fatal("expected logger")
	}
}

func TestInvalidLevel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid level")
		}
	}()
	NewLogger("invalid")
}

func TestNoopLogger(t *testing.T) {
	NewNoopLogger().Infof("dropped %s", "message")
}
