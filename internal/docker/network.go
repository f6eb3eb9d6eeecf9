package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
)

// Containers are always created on the runtime's default bridge so host-port
// bindings work; a single primary network cannot carry both direct bindings
// and the shared proxy network. Joining the proxy network is therefore a
// second, post-creation attachment, never the container's primary network.

// EnsureProxyNetwork creates the shared reverse-proxy network when missing
// and returns its ID.
func (c *Client) EnsureProxyNetwork(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("network name cannot be empty")
	}
	args := filters.NewArgs(filters.Arg("name", name))
	networks, err := c.inner.NetworkList(ctx, network.ListOptions{Filters: args})
	if err != nil {
		return "", fmt.Errorf("list networks: %w", err)
	}
	for _, nw := range networks {
		if nw.Name == name {
			return nw.ID, nil
		}
	}
	created, err := c.inner.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return "", fmt.Errorf("create network %s: %w", name, err)
	}
	return created.ID, nil
}

// AttachProxy joins a container to the proxy network as a live post-creation
// operation. Attaching an already-attached container is a no-op.
func (c *Client) AttachProxy(ctx context.Context, networkName, containerID string) error {
	err := c.inner.NetworkConnect(ctx, networkName, containerID, &network.EndpointSettings{})
	if err == nil {
		return nil
	}
	if errdefs.IsForbidden(err) || strings.Contains(err.Error(), "already exists in network") {
		return nil
	}
	return fmt.Errorf("attach proxy network: %w", err)
}

// DetachProxy removes a container from the proxy network. Detaching a
// container that is not attached is a no-op.
func (c *Client) DetachProxy(ctx context.Context, networkName, containerID string) error {
	err := c.inner.NetworkDisconnect(ctx, networkName, containerID, true)
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is not connected") {
		return nil
	}
	return fmt.Errorf("detach proxy network: %w", err)
}
