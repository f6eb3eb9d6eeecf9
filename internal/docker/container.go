package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/sethvargo/go-retry"
)

// ContainerSpec describes one container to create with direct host-port
// bindings on the default bridge network.
type ContainerSpec struct {
	Name         string
	Image        string
	Env          []string
	Labels       map[string]string
	InternalPort int
	HostPort     int
	VolumeName   string
	MountPath    string
	NanoCPUs     int64
	MemoryBytes  int64
}

// CreateAndStart creates a container from the spec, starts it, and waits
// until the daemon reports it running. The container is always created on the
// default bridge with its port bindings; joining the proxy network is a
// separate post-creation step (see AttachProxy).
func (c *Client) CreateAndStart(ctx context.Context, spec ContainerSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("container name cannot be empty")
	}
	if strings.TrimSpace(spec.Image) == "" {
		return "", fmt.Errorf("image name cannot be empty")
	}

	if err := c.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       spec.Labels,
		ExposedPorts: nat.PortSet{},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{},
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
		Resources: container.Resources{
			NanoCPUs: spec.NanoCPUs,
			Memory:   spec.MemoryBytes,
		},
	}

	if spec.InternalPort > 0 {
		port, err := nat.NewPort("tcp", strconv.Itoa(spec.InternalPort))
		if err != nil {
			return "", fmt.Errorf("invalid internal port %d: %w", spec.InternalPort, err)
		}
		config.ExposedPorts[port] = struct{}{}
		if spec.HostPort > 0 {
			hostCfg.PortBindings[port] = []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: strconv.Itoa(spec.HostPort)},
			}
		}
	}

	if spec.VolumeName != "" && spec.MountPath != "" {
		hostCfg.Mounts = []mount.Mount{
			{Type: mount.TypeVolume, Source: spec.VolumeName, Target: spec.MountPath},
		}
	}

	r, err := c.inner.ContainerCreate(ctx, config, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}

	if err := c.inner.ContainerStart(ctx, r.ID, container.StartOptions{}); err != nil {
		return r.ID, fmt.Errorf("container start: %w", err)
	}

	if err := c.waitRunning(ctx, r.ID); err != nil {
		return r.ID, err
	}
	return r.ID, nil
}

// StopContainer stops a running container.
func (c *Client) StopContainer(ctx context.Context, containerID string) error {
	if strings.TrimSpace(containerID) == "" {
		return fmt.Errorf("container id cannot be empty")
	}
	if err := c.inner.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("container stop: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container if it exists. Anonymous volumes
// are never removed here; named volumes are managed separately.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	if strings.TrimSpace(containerID) == "" {
		return fmt.Errorf("container id cannot be empty")
	}
	if err := c.inner.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// CreateVolume creates a named volume, tolerating one that already exists.
func (c *Client) CreateVolume(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("volume name cannot be empty")
	}
	if _, err := c.inner.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return fmt.Errorf("create volume: %w", err)
	}
	return nil
}

// RemoveVolume deletes a named volume if it exists.
func (c *Client) RemoveVolume(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("volume name cannot be empty")
	}
	if err := c.inner.VolumeRemove(ctx, name, true); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove volume: %w", err)
	}
	return nil
}

// ensureImage pulls the image when it is not present locally.
func (c *Client) ensureImage(ctx context.Context, ref string) error {
	if _, _, err := c.inner.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image: %w", err)
	}
	reader, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("drain image pull: %w", err)
	}
	return nil
}

// waitRunning polls the daemon until the container is observably running.
func (c *Client) waitRunning(ctx context.Context, containerID string) error {
	backoff := retry.WithMaxRetries(10, retry.NewConstant(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		inspect, err := c.inner.ContainerInspect(ctx, containerID)
		if err != nil {
			return fmt.Errorf("container inspect: %w", err)
		}
		if inspect.State == nil || !inspect.State.Running {
			return retry.RetryableError(fmt.Errorf("container %s not running yet", containerID))
		}
		return nil
	})
}
