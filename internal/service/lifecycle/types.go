package lifecycle

import (
	"regexp"

	"github.com/atelierhq/atelier/internal/domain"
)

// CreateSpec is the accepted shape of a create request.
type CreateSpec struct {
	OwnerID      string
	TeamID       string
	ParentID     *string
	Name         string
	Type         domain.ResourceType
	Image        string
	Env          map[string]string
	DirectAccess bool
	Route        *RouteRequest
}

// RouteRequest asks for a published route. An empty DomainID selects the
// platform default domain; an empty Subdomain requests a generated one.
type RouteRequest struct {
	DomainID   string
	Subdomain  string
	CustomHost string
}

// typeSpec fixes the per-type container shape and lifecycle policy.
type typeSpec struct {
	image       string
	bindPort    int
	routePort   int
	mountPath   string
	nanoCPUs    int64
	memoryBytes int64

	// requiresDirect forces a host-port lease regardless of the request:
	// workspaces need it for the agent bridge, databases and buckets for
	// their connection endpoints.
	requiresDirect bool

	// retainPortOnStop keeps the lease across stop/start so stored
	// connection strings stay valid. This is explicit per-type policy:
	// databases and buckets retain, workspaces and deployments release
	// and re-allocate on start.
	retainPortOnStop bool
}

const (
	gib = 1 << 30

	// agentPort is where the execution helper listens inside a workspace.
	agentPort = 3888
)

var typeSpecs = map[domain.ResourceType]typeSpec{
	domain.ResourceWorkspace: {
		image:            "atelierhq/workspace:latest",
		bindPort:         agentPort,
		routePort:        3000,
		mountPath:        "/workspace",
		nanoCPUs:         2_000_000_000,
		memoryBytes:      4 * gib,
		requiresDirect:   true,
		retainPortOnStop: false,
	},
	domain.ResourceDatabase: {
		image:            "postgres:16-alpine",
		bindPort:         5432,
		routePort:        5432,
		mountPath:        "/var/lib/postgresql/data",
		nanoCPUs:         1_000_000_000,
		memoryBytes:      2 * gib,
		requiresDirect:   true,
		retainPortOnStop: true,
	},
	domain.ResourceBucket: {
		image:            "minio/minio:latest",
		bindPort:         9000,
		routePort:        9000,
		mountPath:        "/data",
		nanoCPUs:         1_000_000_000,
		memoryBytes:      1 * gib,
		requiresDirect:   true,
		retainPortOnStop: true,
	},
	domain.ResourceDeployment: {
		bindPort:         8080,
		routePort:        8080,
		nanoCPUs:         1_000_000_000,
		memoryBytes:      1 * gib,
		requiresDirect:   false,
		retainPortOnStop: false,
	},
}

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,38}[a-z0-9])?$`)
