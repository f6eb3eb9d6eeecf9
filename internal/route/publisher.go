package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/domain"
	"github.com/atelierhq/atelier/internal/repository"
)

// Spec describes a route to publish: either a subdomain under a registered
// domain, or a fully custom host, pointing at the container's target port.
type Spec struct {
	Subdomain  string
	CustomHost string
	Domain     domain.Domain
	TargetPort int
}

// Publisher turns route specs into reverse-proxy labels and persists the
// route record. Labels are applied at container-create time: the runtime
// cannot relabel a running container, so adding a route later requires
// recreation. Callers must plan the full label set before create.
type Publisher struct {
	routes      repository.RouteRepository
	entryPoint  string
	certResolve string
	log         *slog.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(routes repository.RouteRepository, entryPoint, certResolver string, log *slog.Logger) *Publisher {
	return &Publisher{
		routes:      routes,
		entryPoint:  entryPoint,
		certResolve: certResolver,
		log:         log,
	}
}

// Host computes the externally visible hostname for the spec.
func (s Spec) Host() string {
	if s.CustomHost != "" {
		return s.CustomHost
	}
	return s.Subdomain + "." + s.Domain.Hostname
}

// routerName returns a resource-scoped unique router identifier.
func routerName(resourceID string) string {
	id := strings.ReplaceAll(resourceID, "-", "")
	if len(id) > 12 {
		id = id[:12]
	}
	return "atelier-" + id
}

// Labels computes the full reverse-proxy label set for a route.
func (p *Publisher) Labels(resourceID string, spec Spec) (map[string]string, error) {
	host := spec.Host()
	if host == "" || strings.HasPrefix(host, ".") {
		return nil, fmt.Errorf("route spec has no host")
	}
	if spec.TargetPort <= 0 {
		return nil, fmt.Errorf("route spec has no target port")
	}
	name := routerName(resourceID)
	return map[string]string{
		"traefik.enable": "true",
		fmt.Sprintf("traefik.http.routers.%s.rule", name):                      fmt.Sprintf("Host(`%s`)", host),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", name):               p.entryPoint,
		fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", name):          p.certResolve,
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", name): strconv.Itoa(spec.TargetPort),
	}, nil
}

// Publish persists the route record and returns the labels to apply at
// container creation.
func (p *Publisher) Publish(ctx context.Context, resourceID string, spec Spec) (map[string]string, error) {
	labels, err := p.Labels(resourceID, spec)
	if err != nil {
		return nil, err
	}
	record := &domain.Route{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		DomainID:   spec.Domain.ID,
		Subdomain:  spec.Subdomain,
		CustomHost: spec.CustomHost,
		TargetPort: spec.TargetPort,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.routes.CreateRoute(ctx, record); err != nil {
		return nil, fmt.Errorf("persist route: %w", err)
	}
	p.log.Info("route published", "resource_id", resourceID, "host", spec.Host(), "target_port", spec.TargetPort)
	return labels, nil
}

// Unpublish removes the route record for a resource. The labels disappear
// with the container; removing the record stops them from being reapplied.
// Unpublishing a resource without a route is a no-op.
func (p *Publisher) Unpublish(ctx context.Context, resourceID string) error {
	if err := p.routes.DeleteRouteByResource(ctx, resourceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("remove route: %w", err)
	}
	p.log.Info("route unpublished", "resource_id", resourceID)
	return nil
}
