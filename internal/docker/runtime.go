// Package docker talks to the container runtime. Callers see structured
// listings; whether they came from parsing CLI text or from the Engine API
// is a property of the backend.
package docker

import (
	"context"
	"fmt"
)

// Runtime is the narrow set of container runtime operations the benchmark
// driver needs.
type Runtime interface {
	Version(ctx context.Context) (string, error)
	ListContainers(ctx context.Context) ([]ContainerEntry, error)
	ListImages(ctx context.Context) ([]ImageEntry, error)
	PortMappings(ctx context.Context, containerID string) ([]PortEntry, error)
	// Run starts a detached container and returns the id reported by the
	// runtime, untrimmed.
	Run(ctx context.Context, image string, opts RunOptions) (string, error)
	Stop(ctx context.Context, containerID string) error
	// Remove force removes, stopping the container first if needed.
	Remove(ctx context.Context, containerID string) error
	Logs(ctx context.Context, containerID string) (string, error)
}

type ContainerEntry struct {
	ID   string
	Name string
}

type ImageEntry struct {
	ID      string
	RepoTag string
}

// PortEntry is one line of a port listing, e.g. "80/tcp" -> "0.0.0.0:32768".
type PortEntry struct {
	Inner string
	Outer string
}

// RunOptions are the container settings of a detached run. Extra is passed to
// the CLI verbatim after the structured options.
type RunOptions struct {
	CPUSet  string
	Publish []string
	Env     []string
	Extra   []string
}

// Args renders the options as docker run arguments.
func (o RunOptions) Args() []string {
	var args []string
	if o.CPUSet != "" {
		args = append(args, "--cpuset-cpus", o.CPUSet)
	}
	for _, p := range o.Publish {
		args = append(args, "-p", p)
	}
	for _, e := range o.Env {
		args = append(args, "-e", e)
	}
	return append(args, o.Extra...)
}

const (
	BackendCLI = "cli"
	BackendAPI = "api"
)

// New builds the runtime backend by name. binary is only used by the CLI
// backend.
func New(backend, binary string) (Runtime, error) {
	switch backend {
	case "", BackendCLI:
		return NewCLIClient(binary), nil
	case BackendAPI:
		return NewAPIClient()
	default:
		return nil, fmt.Errorf("unknown runtime backend %q (expected %q or %q)", backend, BackendCLI, BackendAPI)
	}
}
