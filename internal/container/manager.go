// Package container provisions, resolves and tears down the containers that
// host the CDS server. It keeps no state: every call queries the runtime.
package container

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"cds-bench/internal/docker"
	"cds-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// ShortIDLength is the runtime's display length of container ids.
const ShortIDLength = 12

var (
	ErrContainerNotFound = errors.New("container not found")
	ErrAddressParse      = errors.New("unable to parse public address")
	ErrTruncation        = errors.New("container id shorter than short id length")
)

// Handle is a resolved container id and whether this process created it and
// therefore has to tear it down.
type Handle struct {
	ID      string
	Created bool
}

type Manager struct {
	runtime docker.Runtime
}

func NewManager(runtime docker.Runtime) *Manager {
	return &Manager{runtime: runtime}
}

// Check verifies that the runtime can be invoked at all.
func (m *Manager) Check(ctx context.Context) error {
	version, err := m.runtime.Version(ctx)
	if err != nil {
		return fmt.Errorf("invoking docker client failed: %w", err)
	}
	logging.GetLogger().WithField("version", strings.TrimSpace(version)).Debug("Docker client reachable")
	return nil
}

// ResolveContainer returns the id of the first running container whose id or
// name starts with ref. Several matches are not reported; the first wins.
func (m *Manager) ResolveContainer(ctx context.Context, ref string) (string, bool, error) {
	entries, err := m.runtime.ListContainers(ctx)
	if err != nil {
		return "", false, fmt.Errorf("listing containers: %w", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.ID, ref) || strings.HasPrefix(entry.Name, ref) {
			return entry.ID, true, nil
		}
	}
	return "", false, nil
}

// ResolveImage is ResolveContainer for images, matching id or repo:tag.
func (m *Manager) ResolveImage(ctx context.Context, ref string) (string, bool, error) {
	entries, err := m.runtime.ListImages(ctx)
	if err != nil {
		return "", false, fmt.Errorf("listing images: %w", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.ID, ref) || strings.HasPrefix(entry.RepoTag, ref) {
			return entry.ID, true, nil
		}
	}
	return "", false, nil
}

// PublicAddress returns the host address bound to the container's tcp port.
// Only an exact "<port>/tcp" match counts.
func (m *Manager) PublicAddress(ctx context.Context, containerID string, port uint16) (netip.AddrPort, bool, error) {
	entries, err := m.runtime.PortMappings(ctx, containerID)
	if err != nil {
		return netip.AddrPort{}, false, fmt.Errorf("listing ports of container %s: %w", containerID, err)
	}

	inner := fmt.Sprintf("%d/tcp", port)
	for _, entry := range entries {
		if entry.Inner != inner {
			continue
		}
		addr, err := netip.ParseAddrPort(entry.Outer)
		if err != nil {
			return netip.AddrPort{}, false, fmt.Errorf("%w: container %s public address (%s) associated with private port %d: %v",
				ErrAddressParse, containerID, entry.Outer, port, err)
		}
		return addr, true, nil
	}
	return netip.AddrPort{}, false, nil
}

// Start runs a detached container from image. The handle carries the short id
// and is marked as created.
func (m *Manager) Start(ctx context.Context, image string, opts docker.RunOptions) (Handle, error) {
	logger := logging.GetLogger()

	id, err := m.runtime.Run(ctx, image, opts)
	if err != nil {
		return Handle{}, fmt.Errorf("starting container from %s: %w", image, err)
	}
	id = strings.TrimSpace(id)
	if len(id) < ShortIDLength {
		return Handle{}, fmt.Errorf("%w: got %q", ErrTruncation, id)
	}
	shortID := id[:ShortIDLength]

	logger.WithFields(logrus.Fields{
		"image":        image,
		"container_id": shortID,
		"cpuset":       opts.CPUSet,
	}).Info("Container started")

	return Handle{ID: shortID, Created: true}, nil
}

// Stop stops the container, or force removes it when remove is set. Errors of
// the runtime, including for containers that are already gone, are returned.
func (m *Manager) Stop(ctx context.Context, containerID string, remove bool) error {
	logger := logging.GetLogger()

	var err error
	if remove {
		err = m.runtime.Remove(ctx, containerID)
	} else {
		err = m.runtime.Stop(ctx, containerID)
	}
	if err != nil {
		return fmt.Errorf("stopping container %s: %w", containerID, err)
	}

	logger.WithFields(logrus.Fields{
		"container_id": containerID,
		"removed":      remove,
	}).Info("Container stopped")
	return nil
}

func (m *Manager) Logs(ctx context.Context, containerID string) (string, error) {
	out, err := m.runtime.Logs(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("fetching logs of container %s: %w", containerID, err)
	}
	return out, nil
}
