// Package invoke runs a program on a CDS server inside a container over its
// HTTP API.
package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"cds-bench/internal/container"
	"cds-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// Containers is what the invoker needs from the lifecycle manager.
type Containers interface {
	ResolveContainer(ctx context.Context, ref string) (string, bool, error)
	PublicAddress(ctx context.Context, containerID string, port uint16) (netip.AddrPort, bool, error)
	Logs(ctx context.Context, containerID string) (string, error)
}

// Result is a finished program run. DurationMicros is the server's value as
// sent on the wire.
type Result struct {
	Stdout         string
	Stderr         string
	ExitStatus     int32
	DurationMicros uint64
}

// Duration converts DurationMicros, saturating at the largest time.Duration.
func (r Result) Duration() time.Duration {
	if r.DurationMicros > uint64(math.MaxInt64/int64(time.Microsecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(r.DurationMicros) * time.Microsecond
}

type Invoker struct {
	containers Containers
	client     *http.Client
}

// NewInvoker returns an invoker whose HTTP client never times out; the
// program on the other side may run for as long as it needs.
func NewInvoker(containers Containers) *Invoker {
	return &Invoker{
		containers: containers,
		client:     &http.Client{Timeout: 0},
	}
}

// Run resolves ref and port to the server's public address, sends stdin to
// /run/<program> and decodes the result.
func (inv *Invoker) Run(ctx context.Context, ref string, port uint16, program string, stdin []byte) (Result, error) {
	logger := logging.GetLogger()

	containerID, ok, err := inv.containers.ResolveContainer(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("resolving container %s: %w", ref, err)
	}
	if !ok {
		return Result{}, fmt.Errorf("unable to find a running container with id %s: %w", ref, container.ErrContainerNotFound)
	}

	addr, ok, err := inv.containers.PublicAddress(ctx, containerID, port)
	if err != nil {
		return Result{}, inv.withLogs(ctx, containerID, err)
	}
	if !ok {
		return Result{}, inv.withLogs(ctx, containerID, fmt.Errorf("container %s, port %d: %w", containerID, port, ErrPortNotExposed))
	}

	url := fmt.Sprintf("http://%s/run/%s", addr, program)
	logger.WithFields(logrus.Fields{
		"container_id": containerID,
		"url":          url,
		"stdin_bytes":  len(stdin),
	}).Debug("Invoking program")

	resp, err := inv.post(ctx, url, NewRequest(stdin))
	if err != nil {
		return Result{}, inv.withLogs(ctx, containerID, err)
	}

	if resp.Error != nil {
		return Result{}, &RemoteError{Message: *resp.Error}
	}

	stdout, err := decodePayload(resp.Stdout)
	if err != nil {
		return Result{}, fmt.Errorf("could not decode stdout: %w: %v", ErrPayloadDecode, err)
	}
	stderr, err := decodePayload(resp.Stderr)
	if err != nil {
		return Result{}, fmt.Errorf("could not decode stderr: %w: %v", ErrPayloadDecode, err)
	}

	result := Result{
		Stdout:         strings.ToValidUTF8(string(stdout), "\uFFFD"),
		Stderr:         strings.ToValidUTF8(string(stderr), "\uFFFD"),
		ExitStatus:     resp.ExitStatus,
		DurationMicros: resp.Duration,
	}

	logger.WithFields(logrus.Fields{
		"program":     program,
		"exit_status": result.ExitStatus,
		"duration_us": resp.Duration,
	}).Debug("Program finished")

	return result, nil
}

func (inv *Invoker) post(ctx context.Context, url string, body Request) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := inv.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w (status %s): %v", ErrResponseParse, httpResp.Status, err)
	}
	return &resp, nil
}

// withLogs appends the container's log output to err. A failure to fetch the
// logs is appended instead.
func (inv *Invoker) withLogs(ctx context.Context, containerID string, err error) error {
	logs, logErr := inv.containers.Logs(ctx, containerID)
	if logErr != nil {
		return fmt.Errorf("%w\n(container logs unavailable: %v)", err, logErr)
	}
	return fmt.Errorf("%w\ncontainer logs:\n--------------\n%s--------------", err, logs)
}
