package domain

import "time"

// ResourceType identifies the kind of container-backed unit a tenant owns.
type ResourceType string

const (
	ResourceWorkspace  ResourceType = "workspace"
	ResourceDatabase   ResourceType = "database"
	ResourceBucket     ResourceType = "bucket"
	ResourceDeployment ResourceType = "deployment"
)

// ResourceStatus tracks the lifecycle state machine.
type ResourceStatus string

const (
	StatusCreating ResourceStatus = "creating"
	StatusRunning  ResourceStatus = "running"
	StatusStopped  ResourceStatus = "stopped"
	StatusError    ResourceStatus = "error"
)

// ManagedResource is a tenant-visible unit of infrastructure backed by one container.
type ManagedResource struct {
	ID           string
	OwnerID      string
	TeamID       string
	ParentID     *string
	Name         string
	Type         ResourceType
	Status       ResourceStatus
	Image        string
	ContainerID  string
	VolumeName   string
	HostPort     int
	DirectAccess bool
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResourceStatusUpdate captures the mutable runtime fields of a resource.
type ResourceStatusUpdate struct {
	ResourceID  string
	Status      ResourceStatus
	ContainerID string
	HostPort    int
	LastError   string
}

// PortLease is an exclusive claim on one host port until explicitly released.
type PortLease struct {
	Port       int
	ResourceID string
}

// ResourceEnvVar stores one encrypted environment variable for a resource.
type ResourceEnvVar struct {
	ResourceID string
	Key        string
	Value      []byte
	CreatedAt  time.Time
}
