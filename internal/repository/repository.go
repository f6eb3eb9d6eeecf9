package repository

import (
	"context"

	"github.com/atelierhq/atelier/internal/domain"
)

// ResourceRepository persists managed resources and their env vars.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource *domain.ManagedResource) error
	GetResourceByID(ctx context.Context, resourceID string) (*domain.ManagedResource, error)
	UpdateResourceStatus(ctx context.Context, update domain.ResourceStatusUpdate) error
	DeleteResource(ctx context.Context, resourceID string) error
	ListResourcesByOwner(ctx context.Context, ownerID string) ([]domain.ManagedResource, error)
	CountResourcesByOwner(ctx context.Context, ownerID string) (int, error)
	UpsertResourceEnvVar(ctx context.Context, envVar *domain.ResourceEnvVar) error
	ListResourceEnvVars(ctx context.Context, resourceID string) ([]domain.ResourceEnvVar, error)
	ListPortLeases(ctx context.Context) ([]domain.PortLease, error)
}

// DomainRepository reads registered hostnames. Domain CRUD lives in the
// business layer; the orchestrator only resolves them.
type DomainRepository interface {
	GetDomainByID(ctx context.Context, domainID string) (*domain.Domain, error)
	GetDefaultDomain(ctx context.Context) (*domain.Domain, error)
}

// RouteRepository persists resource-to-hostname bindings. ListRoutesByDomain
// backs the per-domain subdomain uniqueness check.
type RouteRepository interface {
	CreateRoute(ctx context.Context, route *domain.Route) error
	GetRouteByResource(ctx context.Context, resourceID string) (*domain.Route, error)
	DeleteRouteByResource(ctx context.Context, resourceID string) error
	ListRoutesByDomain(ctx context.Context, domainID string) ([]domain.Route, error)
}
