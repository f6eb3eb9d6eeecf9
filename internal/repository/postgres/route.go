package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/domain"
	"github.com/atelierhq/atelier/internal/repository"
)

// GetDomainByID fetches a registered hostname.
func (r *Repository) GetDomainByID(ctx context.Context, domainID string) (*domain.Domain, error) {
	const query = `SELECT id, hostname, owner_id, verified, is_default, created_at FROM domains WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, domainID)
	var d domain.Domain
	if err := row.Scan(&d.ID, &d.Hostname, &d.OwnerID, &d.Verified, &d.Default, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// GetDefaultDomain returns the platform's default domain.
func (r *Repository) GetDefaultDomain(ctx context.Context) (*domain.Domain, error) {
	const query = `SELECT id, hostname, owner_id, verified, is_default, created_at FROM domains WHERE is_default = TRUE LIMIT 1`
	row := r.pool.QueryRow(ctx, query)
	var d domain.Domain
	if err := row.Scan(&d.ID, &d.Hostname, &d.OwnerID, &d.Verified, &d.Default, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// CreateRoute inserts a route binding. The unique index on (domain_id,
// subdomain) backstops the generator's uniqueness check.
func (r *Repository) CreateRoute(ctx context.Context, route *domain.Route) error {
	const query = `INSERT INTO routes (id, resource_id, domain_id, subdomain, custom_host, target_port, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, route.ID, route.ResourceID, route.DomainID,
		route.Subdomain, route.CustomHost, route.TargetPort, route.CreatedAt)
	return err
}

// GetRouteByResource returns the route bound to a resource.
func (r *Repository) GetRouteByResource(ctx context.Context, resourceID string) (*domain.Route, error) {
	const query = `SELECT id, resource_id, domain_id, subdomain, custom_host, target_port, created_at
		FROM routes WHERE resource_id = $1`
	row := r.pool.QueryRow(ctx, query, resourceID)
	var route domain.Route
	if err := row.Scan(&route.ID, &route.ResourceID, &route.DomainID, &route.Subdomain,
		&route.CustomHost, &route.TargetPort, &route.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &route, nil
}

// DeleteRouteByResource removes the route bound to a resource.
func (r *Repository) DeleteRouteByResource(ctx context.Context, resourceID string) error {
	const query = `DELETE FROM routes WHERE resource_id = $1`
	tag, err := r.pool.Exec(ctx, query, resourceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListRoutesByDomain returns every route published under a domain.
func (r *Repository) ListRoutesByDomain(ctx context.Context, domainID string) ([]domain.Route, error) {
	const query = `SELECT id, resource_id, domain_id, subdomain, custom_host, target_port, created_at
		FROM routes WHERE domain_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Route
	for rows.Next() {
		var route domain.Route
		if err := rows.Scan(&route.ID, &route.ResourceID, &route.DomainID, &route.Subdomain,
			&route.CustomHost, &route.TargetPort, &route.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, route)
	}
	return out, rows.Err()
}
