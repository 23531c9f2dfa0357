// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package schema scopes units of work to one tenant's data partition.
// The active partition is carried in the request context, never in
// process-global state, so concurrent requests cannot observe each
// other's scope.
package schema

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Public is the shared partition holding the tenant directory itself.
const Public Ref = "public"

var (
	ErrInvalidRef = errors.New("invalid schema reference")
	ErrNoSchema   = errors.New("no schema in context")

	// Postgres identifier, lowercase, no quoting tricks. Generated refs
	// are "t" + 32 hex chars; "public" is the only reserved value.
	refPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)
)

// Ref identifies one tenant partition. A Ref is only constructed through
// NewRef so anything carried in a context is safe to interpolate as a
// schema-qualified identifier.
type Ref string

func NewRef(s string) (Ref, error) {
	if !refPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Ref(s), nil
}

func (r Ref) String() string {
	return string(r)
}

func (r Ref) IsPublic() bool {
	return r == Public
}

type contextKey struct{}

var schemaContextKey = contextKey{}

// WithSchema derives a context scoped to the given partition. The parent
// context keeps its own scope, which makes nesting and restoration
// automatic: callers that hold on to the parent are unaffected by
// anything the child does.
func WithSchema(ctx context.Context, ref Ref) context.Context {
	return context.WithValue(ctx, schemaContextKey, ref)
}

// FromContext returns the active partition scope, if any.
func FromContext(ctx context.Context) (Ref, bool) {
	ref, ok := ctx.Value(schemaContextKey).(Ref)
	return ref, ok
}

// MustFromContext returns the active partition scope or ErrNoSchema.
func MustFromContext(ctx context.Context) (Ref, error) {
	ref, ok := FromContext(ctx)
	if !ok {
		return "", ErrNoSchema
	}
	return ref, nil
}

// Run executes fn scoped to ref. The caller's scope is untouched on every
// exit path, including panics and early returns, because the child scope
// only lives in the derived context handed to fn.
func Run(ctx context.Context, ref Ref, fn func(context.Context) error) error {
	return fn(WithSchema(ctx, ref))
}
