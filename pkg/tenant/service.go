// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package tenant implements the tenant lifecycle: registration with
// partition provisioning, domain management, directory email updates
// and the hq administration surface.
package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring"
	"github.com/canonical/tenant-auth-service/internal/schema"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/internal/types"
	"github.com/canonical/tenant-auth-service/pkg/authn"
	"github.com/canonical/tenant-auth-service/pkg/token"
)

var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidSubdomain  = errors.New("invalid subdomain")
	ErrReservedSubdomain = errors.New("subdomain is reserved")
	ErrInvalidDomain     = errors.New("invalid domain name")
	ErrEmailTaken        = errors.New("email is already in use")
	ErrDomainTaken       = errors.New("domain is already in use")
	ErrDomainProtected   = errors.New("domain cannot be modified")
	ErrSlugTaken         = errors.New("contract slug is already in use")
	ErrNotFound          = errors.New("not found")
)

// OwnerRoleSlug is granted to the account created at registration.
const OwnerRoleSlug = types.CapabilityStaff

const ownerEndpoint = "dashboard"

type RegistrationRequest struct {
	Subdomain string
	OrgName   string
	Email     string
	Password  string
}

type RegistrationResult struct {
	Tenant *types.Tenant
	Domain *types.Domain
	User   *types.User
	Tokens *token.Pair
}

type Service struct {
	directory storage.DirectoryInterface
	accounts  storage.AccountInterface
	db        TxRunnerInterface
	issuer    TokenIssuerInterface

	websiteDomain    string
	accountSubdomain string
	hqDomain         string

	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewService(
	directory storage.DirectoryInterface,
	accounts storage.AccountInterface,
	dbClient TxRunnerInterface,
	issuer TokenIssuerInterface,
	websiteDomain string,
	accountSubdomain string,
	hqDomain string,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	s := new(Service)

	s.directory = directory
	s.accounts = accounts
	s.db = dbClient
	s.issuer = issuer
	s.websiteDomain = websiteDomain
	s.accountSubdomain = accountSubdomain
	s.hqDomain = hqDomain
	s.validate = validator.New()
	s.tracer = tracer
	s.monitor = monitor
	s.logger = logger

	return s
}

// Register creates a tenant with its partition, builtin primary domain,
// starter contract and owner account, and signs the owner in. The whole
// sequence commits or rolls back as one unit: a failed partition
// provisioning leaves no directory rows behind.
func (s *Service) Register(ctx context.Context, r RegistrationRequest) (*RegistrationResult, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.Register")
	defer span.End()

	if err := s.validateRegistration(ctx, r); err != nil {
		return nil, err
	}

	schemaName := "t" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ref, err := schema.NewRef(schemaName)
	if err != nil {
		return nil, err
	}

	fullDomain := r.Subdomain + "." + s.websiteDomain

	result := new(RegistrationResult)

	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		tenant, err := s.directory.CreateTenant(ctx, &types.Tenant{
			SchemaName: schemaName,
			Email:      r.Email,
		})
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return ErrEmailTaken
			}
			return err
		}
		result.Tenant = tenant

		if _, err := s.directory.CreateContract(ctx, &types.Contract{
			TenantID: tenant.ID,
			Slug:     schemaName,
			Type:     "default",
			Note:     r.OrgName,
		}); err != nil {
			return err
		}

		domain, err := s.directory.CreateDomain(ctx, &types.Domain{
			TenantID:  tenant.ID,
			Domain:    fullDomain,
			IsPrimary: true,
			IsBuiltin: true,
		})
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return ErrDomainTaken
			}
			return err
		}
		result.Domain = domain

		if err := s.accounts.ProvisionSchema(ctx, ref); err != nil {
			return err
		}

		return schema.Run(ctx, ref, func(ctx context.Context) error {
			hash, err := authn.HashPassword(r.Password)
			if err != nil {
				return err
			}

			user, err := s.accounts.CreateUser(ctx, &types.User{
				ID:           uuid.NewString(),
				Endpoint:     ownerEndpoint,
				Email:        r.Email,
				Username:     r.Email,
				PasswordHash: hash,
			})
			if err != nil {
				return err
			}
			result.User = user

			if err := s.accounts.AssignRole(ctx, user.ID, OwnerRoleSlug); err != nil {
				return err
			}

			pair, err := s.issuer.Issue(ctx, user, ref)
			if err != nil {
				return err
			}
			result.Tokens = pair

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("registered tenant %s on %s", result.Tenant.ID, fullDomain)

	return result, nil
}

func (s *Service) validateRegistration(ctx context.Context, r RegistrationRequest) error {
	if err := s.validate.Var(r.Email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	if err := authn.ValidatePassword(r.Password); err != nil {
		return err
	}
	if err := s.validate.Var(r.Subdomain, "required,hostname_rfc1123,excludes=."); err != nil {
		return ErrInvalidSubdomain
	}
	if r.Subdomain == s.accountSubdomain {
		return ErrReservedSubdomain
	}

	taken, err := s.directory.TenantEmailExists(ctx, r.Email)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	exists, err := s.directory.DomainExists(ctx, r.Subdomain+"."+s.websiteDomain)
	if err != nil {
		return err
	}
	if exists {
		return ErrDomainTaken
	}

	return nil
}

// CheckEmailAvailable reports whether no live tenant owns the email.
func (s *Service) CheckEmailAvailable(ctx context.Context, email string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.CheckEmailAvailable")
	defer span.End()

	if err := s.validate.Var(email, "required,email"); err != nil {
		return false, ErrInvalidEmail
	}

	taken, err := s.directory.TenantEmailExists(ctx, email)
	if err != nil {
		return false, err
	}

	return !taken, nil
}

// UpdateEmail rewrites a directory contact email across tenants. Scope
// narrows the update to hq tenants, to everything but hq tenants, or
// applies it everywhere.
func (s *Service) UpdateEmail(ctx context.Context, scope storage.EmailScope, original, updated string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.UpdateEmail")
	defer span.End()

	if err := s.validate.Var(original, "required,email"); err != nil {
		return 0, ErrInvalidEmail
	}
	if err := s.validate.Var(updated, "required,email"); err != nil {
		return 0, ErrInvalidEmail
	}

	return s.directory.UpdateTenantEmail(ctx, scope, s.hqDomain, original, updated)
}

func (s *Service) ListDomains(ctx context.Context, tenantID string) ([]*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.ListDomains")
	defer span.End()

	return s.directory.ListDomainsByTenantID(ctx, tenantID)
}

// CreateDomain attaches a custom hostname to the tenant. Marking it
// primary demotes the previous primary in the same transaction.
func (s *Service) CreateDomain(ctx context.Context, tenantID, domain string, isPrimary bool) (*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.CreateDomain")
	defer span.End()

	domain = strings.ToLower(strings.TrimSpace(domain))
	if err := s.validate.Var(domain, "required,fqdn"); err != nil {
		return nil, ErrInvalidDomain
	}

	created, err := s.directory.CreateDomain(ctx, &types.Domain{
		TenantID:  tenantID,
		Domain:    domain,
		IsPrimary: isPrimary,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrDomainTaken
		}
		return nil, err
	}

	return created, nil
}

func (s *Service) UpdateDomain(ctx context.Context, tenantID, domainID, domain string, isPrimary bool) (*types.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.UpdateDomain")
	defer span.End()

	existing, err := s.ownedDomain(ctx, tenantID, domainID)
	if err != nil {
		return nil, err
	}
	if existing.IsBuiltin && !strings.EqualFold(existing.Domain, domain) {
		return nil, ErrDomainProtected
	}

	domain = strings.ToLower(strings.TrimSpace(domain))
	if err := s.validate.Var(domain, "required,fqdn"); err != nil {
		return nil, ErrInvalidDomain
	}

	updated, err := s.directory.UpdateDomain(ctx, &types.Domain{
		ID:        domainID,
		TenantID:  tenantID,
		Domain:    domain,
		IsPrimary: isPrimary,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrDomainTaken
		}
		return nil, err
	}

	return updated, nil
}

// DeleteDomain removes a custom hostname. Builtin and primary domains
// are protected: a tenant must always stay reachable somewhere.
func (s *Service) DeleteDomain(ctx context.Context, tenantID, domainID string) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.DeleteDomain")
	defer span.End()

	existing, err := s.ownedDomain(ctx, tenantID, domainID)
	if err != nil {
		return err
	}
	if existing.IsBuiltin || existing.IsPrimary {
		return ErrDomainProtected
	}

	return s.directory.SoftDeleteDomain(ctx, domainID)
}

func (s *Service) RestoreDomain(ctx context.Context, tenantID, domainID string) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.RestoreDomain")
	defer span.End()

	return s.directory.RestoreDomain(ctx, domainID)
}

func (s *Service) ownedDomain(ctx context.Context, tenantID, domainID string) (*types.Domain, error) {
	existing, err := s.directory.GetDomainByID(ctx, domainID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if existing.TenantID != tenantID {
		// Owned by someone else; indistinguishable from absent.
		return nil, ErrNotFound
	}
	return existing, nil
}

func (s *Service) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.ListTenants")
	defer span.End()

	return s.directory.ListTenants(ctx)
}

func (s *Service) DeleteTenant(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.DeleteTenant")
	defer span.End()

	if err := s.directory.SoftDeleteTenant(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// PurgeTenant removes a tenant permanently. The directory rows and the
// data partition go together in one transaction; a soft-deleted tenant
// can still be purged.
func (s *Service) PurgeTenant(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.PurgeTenant")
	defer span.End()

	return s.db.WithTx(ctx, func(ctx context.Context) error {
		tenant, err := s.directory.HardDeleteTenant(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		ref, err := schema.NewRef(tenant.SchemaName)
		if err != nil {
			return err
		}

		return s.accounts.DropSchema(ctx, ref)
	})
}

func (s *Service) RestoreTenant(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.RestoreTenant")
	defer span.End()

	if err := s.directory.RestoreTenant(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) AddContract(ctx context.Context, tenantID, slug, contractType, note string, effectiveFrom, expiredOn *time.Time) (*types.Contract, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.AddContract")
	defer span.End()

	contract, err := s.directory.CreateContract(ctx, &types.Contract{
		TenantID:      tenantID,
		Slug:          slug,
		Type:          contractType,
		Note:          note,
		EffectiveFrom: effectiveFrom,
		ExpiredOn:     expiredOn,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}

	return contract, nil
}

func (s *Service) ExpireContract(ctx context.Context, id string, when time.Time) error {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.ExpireContract")
	defer span.End()

	if err := s.directory.ExpireContract(ctx, id, when); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) TenantBySchema(ctx context.Context, ref schema.Ref) (*types.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Service.TenantBySchema")
	defer span.End()

	tenant, err := s.directory.GetTenantBySchema(ctx, ref.String())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tenant, nil
}

var _ ServiceInterface = (*Service)(nil)
