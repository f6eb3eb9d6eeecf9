package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/docker"
	"github.com/atelierhq/atelier/internal/domain"
	"github.com/atelierhq/atelier/internal/repository"
	"github.com/atelierhq/atelier/internal/route"
	"github.com/atelierhq/atelier/internal/subdomain"
	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/crypto"
)

// Create sub-step names carried by CreationError.
const (
	stepPersistRecord  = "persist_record"
	stepAllocatePort   = "allocate_port"
	stepPublishRoute   = "publish_route"
	stepStoreEnv       = "store_env"
	stepCreateVolume   = "create_volume"
	stepStartContainer = "start_container"
	stepAttachNetwork  = "attach_proxy_network"
	stepFinalizeRecord = "finalize_record"
)

// ContainerRuntime is the slice of the container runtime the lifecycle
// manager drives. Success on any call means the effect is observable.
type ContainerRuntime interface {
	CreateAndStart(ctx context.Context, spec docker.ContainerSpec) (string, error)
	StopContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
	CreateVolume(ctx context.Context, name string) error
	RemoveVolume(ctx context.Context, name string) error
	AttachProxy(ctx context.Context, network, containerID string) error
	DetachProxy(ctx context.Context, network, containerID string) error
}

// PortAllocator leases host ports from the shared numeric space.
type PortAllocator interface {
	Allocate(resourceID string) (int, error)
	Reserve(port int, resourceID string) error
	Release(port int)
}

// SubdomainSource produces unique route labels per domain.
type SubdomainSource interface {
	Generate(ctx context.Context, domainID string) (string, error)
}

// RoutePublisher plans and persists reverse-proxy routes.
type RoutePublisher interface {
	Labels(resourceID string, spec route.Spec) (map[string]string, error)
	Publish(ctx context.Context, resourceID string, spec route.Spec) (map[string]string, error)
	Unpublish(ctx context.Context, resourceID string) error
}

// BridgeNotifier lets the lifecycle manager drop agent connections when the
// backing container goes away.
type BridgeNotifier interface {
	Disconnect(resourceID string)
}

// EventBroadcaster receives lifecycle event payloads per resource topic.
type EventBroadcaster interface {
	Broadcast(topic string, payload []byte)
}

// Event is the lifecycle notification broadcast on status changes.
type Event struct {
	ResourceID string                `json:"resource_id"`
	Type       domain.ResourceType   `json:"type"`
	Status     domain.ResourceStatus `json:"status"`
	Deleted    bool                  `json:"deleted,omitempty"`
	At         time.Time             `json:"at"`
}

// Service orchestrates create/start/stop/delete for managed resources.
// Operations on different resources run concurrently; operations on the same
// resource are serialized by a per-resource mutex.
type Service struct {
	resources repository.ResourceRepository
	domains   repository.DomainRepository
	routes    repository.RouteRepository
	runtime   ContainerRuntime
	ports     PortAllocator
	names     SubdomainSource
	publisher RoutePublisher
	bridges   BridgeNotifier
	events    EventBroadcaster
	log       *slog.Logger
	cfg       config.OrchestratorConfig
	locks     *keyedMutex
	now       func() time.Time
}

// New returns a lifecycle service. bridges and events may be nil.
func New(resources repository.ResourceRepository, domains repository.DomainRepository, routes repository.RouteRepository, runtime ContainerRuntime, ports PortAllocator, names SubdomainSource, publisher RoutePublisher, bridges BridgeNotifier, events EventBroadcaster, log *slog.Logger, cfg config.OrchestratorConfig) *Service {
	return &Service{
		resources: resources,
		domains:   domains,
		routes:    routes,
		runtime:   runtime,
		ports:     ports,
		names:     names,
		publisher: publisher,
		bridges:   bridges,
		events:    events,
		log:       log,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a resource record.
func (s *Service) Get(ctx context.Context, resourceID string) (*domain.ManagedResource, error) {
	return s.resources.GetResourceByID(ctx, resourceID)
}

// List returns the resources owned by a user.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.ManagedResource, error) {
	return s.resources.ListResourcesByOwner(ctx, ownerID)
}

// RestoreLeases rehydrates the port ledger from persisted records, called
// once at startup before any allocation.
func (s *Service) RestoreLeases(ctx context.Context) error {
	leases, err := s.resources.ListPortLeases(ctx)
	if err != nil {
		return fmt.Errorf("list port leases: %w", err)
	}
	for _, lease := range leases {
		if err := s.ports.Reserve(lease.Port, lease.ResourceID); err != nil {
			s.log.Warn("could not restore port lease", "port", lease.Port, "resource_id", lease.ResourceID, "error", err)
		}
	}
	return nil
}

// Create validates the spec, acquires port and route, starts the container
// and persists the resource as running. Any sub-step failure rolls back the
// acquisitions made so far and surfaces a CreationError naming the step.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (*domain.ManagedResource, error) {
	ts, err := s.validate(ctx, spec)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := s.now()
	res := &domain.ManagedResource{
		ID:           id,
		OwnerID:      spec.OwnerID,
		TeamID:       spec.TeamID,
		ParentID:     spec.ParentID,
		Name:         spec.Name,
		Type:         spec.Type,
		Status:       domain.StatusCreating,
		Image:        resolveImage(ts, spec.Image),
		DirectAccess: spec.DirectAccess || ts.requiresDirect,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ts.mountPath != "" {
		res.VolumeName = volumeName(id)
	}

	if err := s.resources.CreateResource(ctx, res); err != nil {
		// Nothing acquired, nothing persisted to discard.
		return nil, &CreationError{Step: stepPersistRecord, Err: err}
	}

	unlock := s.locks.lock(id)
	defer unlock()

	s.emit(res, false)

	if res.DirectAccess {
		port, err := s.ports.Allocate(id)
		if err != nil {
			return nil, s.failCreate(ctx, res, stepAllocatePort, err, false)
		}
		res.HostPort = port
	}

	var labels map[string]string
	hasRoute := false
	if spec.Route != nil {
		routeSpec, err := s.resolveRoute(ctx, spec.Route, ts.routePort)
		if err != nil {
			return nil, s.failCreate(ctx, res, stepPublishRoute, err, false)
		}
		labels, err = s.publisher.Publish(ctx, id, routeSpec)
		if err != nil {
			return nil, s.failCreate(ctx, res, stepPublishRoute, err, false)
		}
		hasRoute = true
	}

	if err := s.storeEnv(ctx, id, spec.Env); err != nil {
		return nil, s.failCreate(ctx, res, stepStoreEnv, err, hasRoute)
	}

	if res.VolumeName != "" {
		if err := s.runtime.CreateVolume(ctx, res.VolumeName); err != nil {
			return nil, s.failCreate(ctx, res, stepCreateVolume, err, hasRoute)
		}
	}

	containerID, err := s.runtime.CreateAndStart(ctx, s.containerSpec(res, ts, spec.Env, labels))
	if err != nil {
		if containerID != "" {
			s.removeContainer(ctx, containerID)
		}
		return nil, s.failCreate(ctx, res, stepStartContainer, err, hasRoute)
	}
	res.ContainerID = containerID

	if hasRoute {
		if err := s.runtime.AttachProxy(ctx, s.cfg.ProxyNetwork, containerID); err != nil {
			s.removeContainer(ctx, containerID)
			return nil, s.failCreate(ctx, res, stepAttachNetwork, err, hasRoute)
		}
	}

	res.Status = domain.StatusRunning
	res.UpdatedAt = s.now()
	if err := s.resources.UpdateResourceStatus(ctx, domain.ResourceStatusUpdate{
		ResourceID:  id,
		Status:      domain.StatusRunning,
		ContainerID: containerID,
		HostPort:    res.HostPort,
	}); err != nil {
		s.removeContainer(ctx, containerID)
		return nil, s.failCreate(ctx, res, stepFinalizeRecord, err, hasRoute)
	}

	s.emit(res, false)
	s.log.Info("resource created", "resource_id", id, "type", res.Type, "host_port", res.HostPort, "has_route", hasRoute)
	recordOperation("create", "success")
	return res, nil
}

// Start recreates the container of a stopped or errored resource from its
// stored configuration and reapplies network and route. Starting a running
// resource is a no-op.
func (s *Service) Start(ctx context.Context, resourceID string) (*domain.ManagedResource, error) {
	unlock := s.locks.lock(resourceID)
	defer unlock()

	res, err := s.resources.GetResourceByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case domain.StatusRunning:
		return res, nil
	case domain.StatusCreating:
		return nil, fmt.Errorf("%w: resource %s is still being created", ErrInvalidState, resourceID)
	}
	ts, ok := typeSpecs[res.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrValidation, res.Type)
	}

	allocated := 0
	if res.DirectAccess {
		if res.HostPort > 0 {
			// Retained lease; re-assert it in the ledger.
			if err := s.ports.Reserve(res.HostPort, res.ID); err != nil {
				return nil, fmt.Errorf("reserve retained port %d: %w", res.HostPort, err)
			}
		} else {
			port, err := s.ports.Allocate(res.ID)
			if err != nil {
				return nil, err
			}
			res.HostPort = port
			allocated = port
		}
	}

	fail := func(step string, cause error) (*domain.ManagedResource, error) {
		retained := res.HostPort
		if allocated > 0 {
			s.ports.Release(allocated)
			retained = 0
		}
		s.persistError(ctx, res.ID, retained, cause)
		recordOperation("start", "failure")
		return nil, fmt.Errorf("start resource %s: %s: %w", resourceID, step, cause)
	}

	env, err := s.loadEnv(ctx, res.ID)
	if err != nil {
		return fail("load env", err)
	}

	var labels map[string]string
	hasRoute := false
	routeRec, err := s.routes.GetRouteByResource(ctx, res.ID)
	switch {
	case err == nil:
		routeSpec, err := s.routeSpecFromRecord(ctx, routeRec)
		if err != nil {
			return fail("resolve route", err)
		}
		labels, err = s.publisher.Labels(res.ID, routeSpec)
		if err != nil {
			return fail("plan route labels", err)
		}
		hasRoute = true
	case errors.Is(err, repository.ErrNotFound):
	default:
		return fail("load route", err)
	}

	if res.VolumeName != "" {
		if err := s.runtime.CreateVolume(ctx, res.VolumeName); err != nil {
			return fail("ensure volume", err)
		}
	}

	containerID, err := s.runtime.CreateAndStart(ctx, s.containerSpec(res, ts, env, labels))
	if err != nil {
		if containerID != "" {
			s.removeContainer(ctx, containerID)
		}
		return fail("start container", err)
	}
	res.ContainerID = containerID

	if hasRoute {
		if err := s.runtime.AttachProxy(ctx, s.cfg.ProxyNetwork, containerID); err != nil {
			s.removeContainer(ctx, containerID)
			return fail("attach proxy network", err)
		}
	}

	res.Status = domain.StatusRunning
	res.UpdatedAt = s.now()
	if err := s.resources.UpdateResourceStatus(ctx, domain.ResourceStatusUpdate{
		ResourceID:  res.ID,
		Status:      domain.StatusRunning,
		ContainerID: containerID,
		HostPort:    res.HostPort,
	}); err != nil {
		s.removeContainer(ctx, containerID)
		return fail("persist status", err)
	}

	s.emit(res, false)
	s.log.Info("resource started", "resource_id", res.ID, "host_port", res.HostPort)
	recordOperation("start", "success")
	return res, nil
}

// Stop removes the container of a running resource while retaining its
// volume and record. Port lease retention follows per-type policy.
func (s *Service) Stop(ctx context.Context, resourceID string) error {
	unlock := s.locks.lock(resourceID)
	defer unlock()

	res, err := s.resources.GetResourceByID(ctx, resourceID)
	if err != nil {
		return err
	}
	if res.Status != domain.StatusRunning {
		return fmt.Errorf("%w: cannot stop resource in status %s", ErrInvalidState, res.Status)
	}
	ts := typeSpecs[res.Type]

	if s.bridges != nil {
		s.bridges.Disconnect(res.ID)
	}

	if _, err := s.routes.GetRouteByResource(ctx, res.ID); err == nil {
		if err := s.runtime.DetachProxy(ctx, s.cfg.ProxyNetwork, res.ContainerID); err != nil {
			s.log.Warn("detach proxy network failed during stop", "resource_id", res.ID, "error", err)
		}
	}
	if err := s.runtime.StopContainer(ctx, res.ContainerID); err != nil {
		s.log.Warn("container stop failed, forcing removal", "resource_id", res.ID, "error", err)
	}
	if err := s.runtime.RemoveContainer(ctx, res.ContainerID); err != nil {
		return fmt.Errorf("remove container for %s: %w", resourceID, err)
	}

	port := res.HostPort
	if !ts.retainPortOnStop && res.HostPort > 0 {
		s.ports.Release(res.HostPort)
		port = 0
	}

	res.Status = domain.StatusStopped
	res.ContainerID = ""
	res.HostPort = port
	res.UpdatedAt = s.now()
	if err := s.resources.UpdateResourceStatus(ctx, domain.ResourceStatusUpdate{
		ResourceID: res.ID,
		Status:     domain.StatusStopped,
		HostPort:   port,
	}); err != nil {
		return fmt.Errorf("persist stopped status: %w", err)
	}

	s.emit(res, false)
	s.log.Info("resource stopped", "resource_id", res.ID, "port_retained", ts.retainPortOnStop)
	recordOperation("stop", "success")
	return nil
}

// Delete tears a resource fully down: container, optionally volume, port
// lease, route and record. Deleting an already-deleted resource yields
// repository.ErrNotFound. Port and route release are unconditional so the
// resource always converges to zero leases and zero published routes.
func (s *Service) Delete(ctx context.Context, resourceID string, deleteVolume bool) error {
	unlock := s.locks.lock(resourceID)
	defer unlock()

	res, err := s.resources.GetResourceByID(ctx, resourceID)
	if err != nil {
		return err
	}

	if s.bridges != nil {
		s.bridges.Disconnect(res.ID)
	}

	if res.ContainerID != "" {
		if err := s.runtime.StopContainer(ctx, res.ContainerID); err != nil {
			s.log.Warn("container stop failed during delete", "resource_id", res.ID, "error", err)
		}
		if err := s.runtime.RemoveContainer(ctx, res.ContainerID); err != nil {
			s.log.Warn("container remove failed during delete", "resource_id", res.ID, "error", err)
		}
	}
	if deleteVolume && res.VolumeName != "" {
		if err := s.runtime.RemoveVolume(ctx, res.VolumeName); err != nil {
			s.log.Warn("volume remove failed during delete", "resource_id", res.ID, "error", err)
		}
	}

	if res.HostPort > 0 {
		s.ports.Release(res.HostPort)
	}
	if err := s.publisher.Unpublish(ctx, res.ID); err != nil {
		s.log.Warn("route unpublish failed during delete", "resource_id", res.ID, "error", err)
	}

	if err := s.resources.DeleteResource(ctx, res.ID); err != nil {
		return fmt.Errorf("delete resource record: %w", err)
	}

	res.Status = domain.StatusStopped
	s.emit(res, true)
	s.log.Info("resource deleted", "resource_id", res.ID, "volume_deleted", deleteVolume)
	recordOperation("delete", "success")
	return nil
}

func (s *Service) validate(ctx context.Context, spec CreateSpec) (typeSpec, error) {
	ts, ok := typeSpecs[spec.Type]
	if !ok {
		return typeSpec{}, fmt.Errorf("%w: unknown resource type %q", ErrValidation, spec.Type)
	}
	if !namePattern.MatchString(spec.Name) {
		return typeSpec{}, fmt.Errorf("%w: name %q must be 1-40 lowercase alphanumeric or hyphen characters", ErrValidation, spec.Name)
	}
	if strings.TrimSpace(spec.OwnerID) == "" {
		return typeSpec{}, fmt.Errorf("%w: owner required", ErrValidation)
	}
	if spec.Type == domain.ResourceDeployment && strings.TrimSpace(spec.Image) == "" {
		return typeSpec{}, fmt.Errorf("%w: deployments require an image", ErrValidation)
	}
	if spec.Route != nil && spec.Route.Subdomain != "" {
		if err := subdomain.Validate(spec.Route.Subdomain); err != nil {
			return typeSpec{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	count, err := s.resources.CountResourcesByOwner(ctx, spec.OwnerID)
	if err != nil {
		return typeSpec{}, fmt.Errorf("count owner resources: %w", err)
	}
	if s.cfg.MaxResourcesPerOwner > 0 && count >= s.cfg.MaxResourcesPerOwner {
		return typeSpec{}, fmt.Errorf("%w: owner %s reached the limit of %d resources", ErrValidation, spec.OwnerID, s.cfg.MaxResourcesPerOwner)
	}
	return ts, nil
}

// resolveRoute turns a route request into a concrete spec, generating or
// validating the subdomain against the domain's existing routes.
func (s *Service) resolveRoute(ctx context.Context, req *RouteRequest, targetPort int) (route.Spec, error) {
	if req.CustomHost != "" {
		return route.Spec{CustomHost: req.CustomHost, TargetPort: targetPort}, nil
	}

	var dom *domain.Domain
	var err error
	if req.DomainID == "" {
		dom, err = s.domains.GetDefaultDomain(ctx)
	} else {
		dom, err = s.domains.GetDomainByID(ctx, req.DomainID)
	}
	if err != nil {
		return route.Spec{}, fmt.Errorf("resolve domain: %w", err)
	}
	if !dom.Verified {
		return route.Spec{}, fmt.Errorf("%w: domain %s is not verified", ErrValidation, dom.Hostname)
	}

	label := req.Subdomain
	if label == "" {
		label, err = s.names.Generate(ctx, dom.ID)
		if err != nil {
			return route.Spec{}, err
		}
	} else {
		existing, err := s.routes.ListRoutesByDomain(ctx, dom.ID)
		if err != nil {
			return route.Spec{}, fmt.Errorf("check subdomain uniqueness: %w", err)
		}
		for _, rt := range existing {
			if rt.Subdomain == label {
				return route.Spec{}, fmt.Errorf("%w: subdomain %q already in use on %s", ErrValidation, label, dom.Hostname)
			}
		}
	}
	return route.Spec{Subdomain: label, Domain: *dom, TargetPort: targetPort}, nil
}

func (s *Service) routeSpecFromRecord(ctx context.Context, rec *domain.Route) (route.Spec, error) {
	if rec.CustomHost != "" {
		return route.Spec{CustomHost: rec.CustomHost, TargetPort: rec.TargetPort}, nil
	}
	dom, err := s.domains.GetDomainByID(ctx, rec.DomainID)
	if err != nil {
		return route.Spec{}, fmt.Errorf("resolve domain %s: %w", rec.DomainID, err)
	}
	return route.Spec{Subdomain: rec.Subdomain, Domain: *dom, TargetPort: rec.TargetPort}, nil
}

func resolveImage(ts typeSpec, override string) string {
	if override != "" {
		return override
	}
	return ts.image
}

// containerSpec builds the full container configuration, planned label set
// included, before any create call.
func (s *Service) containerSpec(res *domain.ManagedResource, ts typeSpec, env map[string]string, labels map[string]string) docker.ContainerSpec {
	hostPort := 0
	if res.DirectAccess {
		hostPort = res.HostPort
	}
	return docker.ContainerSpec{
		Name:         containerName(res),
		Image:        res.Image,
		Env:          s.containerEnv(res, env),
		Labels:       labels,
		InternalPort: ts.bindPort,
		HostPort:     hostPort,
		VolumeName:   res.VolumeName,
		MountPath:    ts.mountPath,
		NanoCPUs:     ts.nanoCPUs,
		MemoryBytes:  ts.memoryBytes,
	}
}

func (s *Service) containerEnv(res *domain.ManagedResource, env map[string]string) []string {
	out := []string{"ATELIER_RESOURCE_ID=" + res.ID}
	if res.Type == domain.ResourceWorkspace {
		out = append(out, fmt.Sprintf("ATELIER_AGENT_PORT=%d", agentPort))
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// storeEnv persists user env vars encrypted at rest.
func (s *Service) storeEnv(ctx context.Context, resourceID string, env map[string]string) error {
	for key, value := range env {
		sealed, err := crypto.EncryptString(s.cfg.EnvEncryptionKey, value)
		if err != nil {
			return fmt.Errorf("encrypt env var %s: %w", key, err)
		}
		if err := s.resources.UpsertResourceEnvVar(ctx, &domain.ResourceEnvVar{
			ResourceID: resourceID,
			Key:        key,
			Value:      sealed,
			CreatedAt:  s.now(),
		}); err != nil {
			return fmt.Errorf("persist env var %s: %w", key, err)
		}
	}
	return nil
}

func (s *Service) loadEnv(ctx context.Context, resourceID string) (map[string]string, error) {
	stored, err := s.resources.ListResourceEnvVars(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list env vars: %w", err)
	}
	env := make(map[string]string, len(stored))
	for _, ev := range stored {
		plain, err := crypto.DecryptToString(s.cfg.EnvEncryptionKey, ev.Value)
		if err != nil {
			return nil, fmt.Errorf("decrypt env var %s: %w", ev.Key, err)
		}
		env[ev.Key] = plain
	}
	return env, nil
}

// failCreate rolls back acquisitions, persists the resource as errored and
// wraps the cause in a CreationError naming the failed step.
func (s *Service) failCreate(ctx context.Context, res *domain.ManagedResource, step string, cause error, hasRoute bool) error {
	if hasRoute {
		if err := s.publisher.Unpublish(ctx, res.ID); err != nil {
			s.log.Warn("route rollback failed", "resource_id", res.ID, "error", err)
		}
	}
	if res.HostPort > 0 {
		s.ports.Release(res.HostPort)
		res.HostPort = 0
	}
	s.persistError(ctx, res.ID, 0, cause)
	res.Status = domain.StatusError
	s.emit(res, false)
	s.log.Error("resource creation failed", "resource_id", res.ID, "step", step, "error", cause)
	recordOperation("create", "failure")
	return &CreationError{Step: step, Err: cause}
}

// persistError marks the record errored. hostPort is whatever lease the
// resource still holds, so a retained lease survives a failed start.
func (s *Service) persistError(ctx context.Context, resourceID string, hostPort int, cause error) {
	if err := s.resources.UpdateResourceStatus(ctx, domain.ResourceStatusUpdate{
		ResourceID: resourceID,
		Status:     domain.StatusError,
		HostPort:   hostPort,
		LastError:  cause.Error(),
	}); err != nil {
		s.log.Warn("could not persist error status", "resource_id", resourceID, "error", err)
	}
}

// removeContainer is best-effort cleanup on a short independent deadline, so
// a cancelled request context cannot strand a half-created container.
func (s *Service) removeContainer(ctx context.Context, containerID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.runtime.RemoveContainer(cleanupCtx, containerID); err != nil {
		s.log.Warn("partial container cleanup failed", "container_id", containerID, "error", err)
	}
}

func (s *Service) emit(res *domain.ManagedResource, deleted bool) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(Event{
		ResourceID: res.ID,
		Type:       res.Type,
		Status:     res.Status,
		Deleted:    deleted,
		At:         s.now(),
	})
	if err != nil {
		return
	}
	s.events.Broadcast(res.ID, payload)
}

func containerName(res *domain.ManagedResource) string {
	return fmt.Sprintf("atelier-%s-%s", res.Type, shortID(res.ID))
}

func volumeName(resourceID string) string {
	return "atelier-vol-" + shortID(resourceID)
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
