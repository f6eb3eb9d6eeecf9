package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/internal/domain"
	"github.com/atelierhq/atelier/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ResourceRepository = (*Repository)(nil)
	_ repository.DomainRepository   = (*Repository)(nil)
	_ repository.RouteRepository    = (*Repository)(nil)
)

// CreateResource inserts a managed resource record.
func (r *Repository) CreateResource(ctx context.Context, resource *domain.ManagedResource) error {
	const query = `INSERT INTO resources
		(id, owner_id, team_id, parent_id, name, type, status, image, container_id, volume_name, host_port, direct_access, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.pool.Exec(ctx, query,
		resource.ID, resource.OwnerID, resource.TeamID, resource.ParentID,
		resource.Name, resource.Type, resource.Status, resource.Image, resource.ContainerID,
		resource.VolumeName, resource.HostPort, resource.DirectAccess,
		resource.LastError, resource.CreatedAt, resource.UpdatedAt)
	return err
}

// GetResourceByID fetches a managed resource by identifier.
func (r *Repository) GetResourceByID(ctx context.Context, resourceID string) (*domain.ManagedResource, error) {
	const query = `SELECT id, owner_id, team_id, parent_id, name, type, status, image, container_id, volume_name, host_port, direct_access, last_error, created_at, updated_at
		FROM resources WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, resourceID)
	var res domain.ManagedResource
	if err := row.Scan(&res.ID, &res.OwnerID, &res.TeamID, &res.ParentID, &res.Name,
		&res.Type, &res.Status, &res.Image, &res.ContainerID, &res.VolumeName, &res.HostPort,
		&res.DirectAccess, &res.LastError, &res.CreatedAt, &res.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// UpdateResourceStatus applies the mutable runtime fields of a resource.
func (r *Repository) UpdateResourceStatus(ctx context.Context, update domain.ResourceStatusUpdate) error {
	const query = `UPDATE resources
		SET status = $2, container_id = $3, host_port = $4, last_error = $5, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, update.ResourceID, update.Status,
		update.ContainerID, update.HostPort, update.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteResource removes a resource record and its env vars.
func (r *Repository) DeleteResource(ctx context.Context, resourceID string) error {
	const query = `DELETE FROM resources WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, resourceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListResourcesByOwner returns all resources owned by a user.
func (r *Repository) ListResourcesByOwner(ctx context.Context, ownerID string) ([]domain.ManagedResource, error) {
	const query = `SELECT id, owner_id, team_id, parent_id, name, type, status, image, container_id, volume_name, host_port, direct_access, last_error, created_at, updated_at
		FROM resources WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ManagedResource
	for rows.Next() {
		var res domain.ManagedResource
		if err := rows.Scan(&res.ID, &res.OwnerID, &res.TeamID, &res.ParentID, &res.Name,
			&res.Type, &res.Status, &res.Image, &res.ContainerID, &res.VolumeName, &res.HostPort,
			&res.DirectAccess, &res.LastError, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ListPortLeases returns every persisted host-port claim, used to rebuild
// the in-memory ledger after a restart.
func (r *Repository) ListPortLeases(ctx context.Context) ([]domain.PortLease, error) {
	const query = `SELECT host_port, id FROM resources WHERE host_port > 0`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PortLease
	for rows.Next() {
		var lease domain.PortLease
		if err := rows.Scan(&lease.Port, &lease.ResourceID); err != nil {
			return nil, err
		}
		out = append(out, lease)
	}
	return out, rows.Err()
}

// CountResourcesByOwner counts resources owned by a user, backing quota checks.
func (r *Repository) CountResourcesByOwner(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(1) FROM resources WHERE owner_id = $1`
	row := r.pool.QueryRow(ctx, query, ownerID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertResourceEnvVar stores an encrypted environment variable.
func (r *Repository) UpsertResourceEnvVar(ctx context.Context, envVar *domain.ResourceEnvVar) error {
	const query = `INSERT INTO resource_env_vars (resource_id, key, value, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_id, key) DO UPDATE SET value = EXCLUDED.value`
	_, err := r.pool.Exec(ctx, query, envVar.ResourceID, envVar.Key, envVar.Value, envVar.CreatedAt)
	return err
}

// ListResourceEnvVars returns the encrypted env vars of a resource.
func (r *Repository) ListResourceEnvVars(ctx context.Context, resourceID string) ([]domain.ResourceEnvVar, error) {
	const query = `SELECT resource_id, key, value, created_at FROM resource_env_vars WHERE resource_id = $1 ORDER BY key`
	rows, err := r.pool.Query(ctx, query, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ResourceEnvVar
	for rows.Next() {
		var ev domain.ResourceEnvVar
		if err := rows.Scan(&ev.ResourceID, &ev.Key, &ev.Value, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
