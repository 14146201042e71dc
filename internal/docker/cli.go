package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"cds-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

const DefaultBinary = "docker"

// CommandRunner executes an external program and reports its captured output
// and exit code. A non-nil error means the program could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, exitCode int, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, nil, -1, err
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// CLIClient drives the docker command line client and parses its text output.
type CLIClient struct {
	binary string
	runner CommandRunner
}

func NewCLIClient(binary string) *CLIClient {
	return NewCLIClientWithRunner(binary, execRunner{})
}

func NewCLIClientWithRunner(binary string, runner CommandRunner) *CLIClient {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CLIClient{binary: binary, runner: runner}
}

// execute runs the binary and returns its stdout. Invalid UTF-8 in stdout is
// replaced; invalid UTF-8 in the stderr of a failed run is an error of its own.
func (c *CLIClient) execute(ctx context.Context, args ...string) (string, error) {
	logger := logging.GetLogger()
	logger.WithFields(logrus.Fields{
		"binary": c.binary,
		"args":   args,
	}).Debug("Invoking docker client")

	stdout, stderr, code, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRuntimeInvocation, err)
	}

	if code != 0 {
		if !utf8.Valid(stderr) {
			return "", fmt.Errorf("invocation of docker client terminated unsuccessfully with exit code %d: %w", code, ErrOutputNotDecodable)
		}
		return "", &ExecutionError{ExitCode: code, Stderr: string(stderr)}
	}

	return strings.ToValidUTF8(string(stdout), "\uFFFD"), nil
}

func (c *CLIClient) Version(ctx context.Context) (string, error) {
	return c.execute(ctx, "version")
}

func (c *CLIClient) ListContainers(ctx context.Context) ([]ContainerEntry, error) {
	out, err := c.execute(ctx, "ps", "--format", "{{.ID}}:{{.Names}}")
	if err != nil {
		return nil, err
	}
	return ParseContainerList(out), nil
}

func (c *CLIClient) ListImages(ctx context.Context) ([]ImageEntry, error) {
	out, err := c.execute(ctx, "images", "--format", "{{.ID}} {{.Repository}}:{{.Tag}}")
	if err != nil {
		return nil, err
	}
	return ParseImageList(out), nil
}

func (c *CLIClient) PortMappings(ctx context.Context, containerID string) ([]PortEntry, error) {
	out, err := c.execute(ctx, "port", containerID)
	if err != nil {
		return nil, err
	}
	return ParsePortList(out), nil
}

func (c *CLIClient) Run(ctx context.Context, image string, opts RunOptions) (string, error) {
	args := append([]string{"run", "-d"}, opts.Args()...)
	args = append(args, image)
	out, err := c.execute(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *CLIClient) Stop(ctx context.Context, containerID string) error {
	_, err := c.execute(ctx, "stop", containerID)
	return err
}

func (c *CLIClient) Remove(ctx context.Context, containerID string) error {
	_, err := c.execute(ctx, "rm", "--force", containerID)
	return err
}

func (c *CLIClient) Logs(ctx context.Context, containerID string) (string, error) {
	return c.execute(ctx, "logs", containerID)
}
