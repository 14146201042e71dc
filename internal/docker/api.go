package docker

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"strings"

	"cds-bench/internal/logging"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
)

// APIClient implements Runtime over the Docker Engine API. Its listings are
// shaped like the CLI output so callers resolve names the same way.
type APIClient struct {
	docker *client.Client
}

func NewAPIClient() (*APIClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &APIClient{docker: cli}, nil
}

func (c *APIClient) Close() error {
	return c.docker.Close()
}

func (c *APIClient) Version(ctx context.Context) (string, error) {
	v, err := c.docker.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRuntimeInvocation, err)
	}
	return fmt.Sprintf("Server: %s (API %s)", v.Version, v.APIVersion), nil
}

func (c *APIClient) ListContainers(ctx context.Context) ([]ContainerEntry, error) {
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	entries := make([]ContainerEntry, 0, len(containers))
	for _, ctr := range containers {
		name := ""
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		entries = append(entries, ContainerEntry{ID: ctr.ID, Name: name})
	}
	return entries, nil
}

func (c *APIClient) ListImages(ctx context.Context) ([]ImageEntry, error) {
	images, err := c.docker.ImageList(ctx, types.ImageListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	var entries []ImageEntry
	for _, img := range images {
		id := strings.TrimPrefix(img.ID, "sha256:")
		if len(img.RepoTags) == 0 {
			entries = append(entries, ImageEntry{ID: id, RepoTag: "<none>:<none>"})
			continue
		}
		for _, tag := range img.RepoTags {
			entries = append(entries, ImageEntry{ID: id, RepoTag: tag})
		}
	}
	return entries, nil
}

func (c *APIClient) PortMappings(ctx context.Context, containerID string) ([]PortEntry, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	if info.NetworkSettings == nil {
		return nil, nil
	}
	return portEntries(info.NetworkSettings.Ports), nil
}

// portEntries flattens a port map in a stable order. A binding without host
// IP listens on all IPv4 addresses.
func portEntries(ports nat.PortMap) []PortEntry {
	keys := make([]string, 0, len(ports))
	for port := range ports {
		keys = append(keys, string(port))
	}
	sort.Strings(keys)

	var entries []PortEntry
	for _, key := range keys {
		for _, binding := range ports[nat.Port(key)] {
			hostIP := binding.HostIP
			if hostIP == "" {
				hostIP = "0.0.0.0"
			}
			entries = append(entries, PortEntry{
				Inner: key,
				Outer: net.JoinHostPort(hostIP, binding.HostPort),
			})
		}
	}
	return entries
}

func (c *APIClient) Run(ctx context.Context, image string, opts RunOptions) (string, error) {
	logger := logging.GetLogger()

	if len(opts.Extra) > 0 {
		return "", fmt.Errorf("pass-through run arguments %v are only supported by the %s backend", opts.Extra, BackendCLI)
	}

	exposed, bindings, err := nat.ParsePortSpecs(opts.Publish)
	if err != nil {
		return "", fmt.Errorf("invalid port specification %v: %w", opts.Publish, err)
	}

	config := &container.Config{
		Image:        image,
		Env:          opts.Env,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		PortBindings: bindings,
	}
	hostConfig.CpusetCpus = opts.CPUSet

	resp, err := c.docker.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container from %s: %w", image, err)
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", resp.ID, err)
	}

	logger.WithFields(logrus.Fields{
		"image":        image,
		"container_id": resp.ID,
		"cpuset":       opts.CPUSet,
	}).Debug("Container started through Engine API")

	return resp.ID, nil
}

func (c *APIClient) Stop(ctx context.Context, containerID string) error {
	if err := c.docker.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}
	return nil
}

func (c *APIClient) Remove(ctx context.Context, containerID string) error {
	removeOptions := container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}
	if err := c.docker.ContainerRemove(ctx, containerID, removeOptions); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

func (c *APIClient) Logs(ctx context.Context, containerID string) (string, error) {
	rc, err := c.docker.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs of container %s: %w", containerID, err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", fmt.Errorf("failed to read logs of container %s: %w", containerID, err)
	}
	return strings.ToValidUTF8(stdout.String()+stderr.String(), "\uFFFD"), nil
}
