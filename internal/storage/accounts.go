// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/canonical/tenant-auth-service/internal/db"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
)

var _ AccountInterface = (*Accounts)(nil)

const userColumns = "id, endpoint, email, username, password_hash, email_verified, last_login, created_at, updated_at, deleted_at"

// Accounts stores users, roles and refresh tokens inside tenant
// partitions. The partition is taken from the context on every call and
// interpolated as a quoted, pre-validated schema identifier.
type Accounts struct {
	db db.DBClientInterface

	logger  logging.LoggerInterface
	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
}

func NewAccounts(c db.DBClientInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Accounts {
	a := new(Accounts)

	a.db = c

	a.logger = logger
	a.tracer = tracer
	a.monitor = monitor

	return a
}

// table returns the schema-qualified table name for the active partition.
func table(ctx context.Context, name string) (string, error) {
	ref, err := schema.MustFromContext(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%q.%s", ref.String(), name), nil
}

func userCols() []string {
	return strings.Split(userColumns, ", ")
}

func (a *Accounts) scanUser(row sq.RowScanner) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Endpoint, &u.Email, &u.Username, &u.PasswordHash, &u.EmailVerified, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (a *Accounts) CreateUser(ctx context.Context, u *types.User) (*types.User, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.CreateUser")
	defer span.End()

	users, err := table(ctx, "users")
	if err != nil {
		return nil, err
	}

	id := u.ID
	if id == "" {
		uid, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate user ID: %w", err)
		}
		id = uid.String()
	}

	row := a.db.Statement(ctx).
		Insert(users).
		Columns("id", "endpoint", "email", "username", "password_hash", "email_verified").
		Values(id, u.Endpoint, u.Email, u.Username, u.PasswordHash, u.EmailVerified).
		Suffix("RETURNING " + userColumns).
		QueryRowContext(ctx)

	created, err := a.scanUser(row)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return created, nil
}

func (a *Accounts) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.GetUserByID")
	defer span.End()

	users, err := table(ctx, "users")
	if err != nil {
		return nil, err
	}

	row := a.db.Statement(ctx).
		Select(userCols()...).
		From(users).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		QueryRowContext(ctx)

	return a.scanUser(row)
}

func (a *Accounts) GetUserByEmail(ctx context.Context, endpoint, email string) (*types.User, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.GetUserByEmail")
	defer span.End()

	users, err := table(ctx, "users")
	if err != nil {
		return nil, err
	}

	row := a.db.Statement(ctx).
		Select(userCols()...).
		From(users).
		Where(sq.Eq{"endpoint": endpoint, "email": email, "deleted_at": nil}).
		QueryRowContext(ctx)

	return a.scanUser(row)
}

func (a *Accounts) EmailInUse(ctx context.Context, endpoint, email, excludeUserID string) (bool, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.EmailInUse")
	defer span.End()

	users, err := table(ctx, "users")
	if err != nil {
		return false, err
	}

	query := a.db.Statement(ctx).
		Select("COUNT(*)").
		From(users).
		Where(sq.Eq{"endpoint": endpoint, "email": email, "deleted_at": nil})

	if excludeUserID != "" {
		query = query.Where(sq.NotEq{"id": excludeUserID})
	}

	var count int
	if err := query.QueryRowContext(ctx).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return count > 0, nil
}

func (a *Accounts) UpdateUserEmail(ctx context.Context, id, email string) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.UpdateUserEmail")
	defer span.End()

	users, err := table(ctx, "users")
	if err != nil {
		return err
	}

	res, err := a.db.Statement(ctx).
		Update(users).
		Set("email", email).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ExecContext(ctx)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to update user email: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (a *Accounts) SetLastLogin(ctx context.Context, id string, when time.Time) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.SetLastLogin")
	defer span.End()

	users, err := table(ctx, "users")
	if err != nil {
		return err
	}

	_, err = a.db.Statement(ctx).
		Update(users).
		Set("last_login", when.UTC()).
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to set last login: %w", err)
	}

	return nil
}

func (a *Accounts) SoftDeleteUser(ctx context.Context, id string) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.SoftDeleteUser")
	defer span.End()

	users, err := table(ctx, "users")
	if err != nil {
		return err
	}

	res, err := a.db.Statement(ctx).
		Update(users).
		Set("deleted_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (a *Accounts) AssignRole(ctx context.Context, userID, slug string) error {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.AssignRole")
	defer span.End()

	userRoles, err := table(ctx, "user_roles")
	if err != nil {
		return err
	}

	_, err = a.db.Statement(ctx).
		Insert(userRoles).
		Columns("user_id", "role").
		Values(userID, slug).
		Suffix("ON CONFLICT DO NOTHING").
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	return nil
}

func (a *Accounts) ListRoleSlugs(ctx context.Context, userID string) ([]string, error) {
	ctx, span := a.tracer.Start(ctx, "storage.Accounts.ListRoleSlugs")
	defer span.End()

	userRoles, err := table(ctx, "user_roles")
	if err != nil {
		return nil, err
	}

	rows, err := a.db.Statement(ctx).
		Select("role").
		From(userRoles).
		Where(sq.Eq{"user_id": userID}).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		slugs = append(slugs, slug)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return slugs, nil
}
