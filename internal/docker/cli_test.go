package docker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedOutput struct {
	stdout string
	stderr []byte
	code   int
	err    error
}

type fakeRunner struct {
	calls   [][]string
	outputs map[string]cannedOutput
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	out, ok := f.outputs[args[0]]
	if !ok {
		return nil, nil, 0, nil
	}
	return []byte(out.stdout), out.stderr, out.code, out.err
}

func newFakeCLI(outputs map[string]cannedOutput) (*CLIClient, *fakeRunner) {
	runner := &fakeRunner{outputs: outputs}
	return NewCLIClientWithRunner("", runner), runner
}

func TestCLIClient_ListContainersArgs(t *testing.T) {
	cli, runner := newFakeCLI(map[string]cannedOutput{
		"ps": {stdout: "abc123:webserver\n"},
	})

	entries, err := cli.ListContainers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ContainerEntry{{ID: "abc123", Name: "webserver"}}, entries)
	assert.Equal(t, [][]string{{"docker", "ps", "--format", "{{.ID}}:{{.Names}}"}}, runner.calls)
}

func TestCLIClient_ListImagesArgs(t *testing.T) {
	cli, runner := newFakeCLI(nil)

	_, err := cli.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"docker", "images", "--format", "{{.ID}} {{.Repository}}:{{.Tag}}"}}, runner.calls)
}

func TestCLIClient_PortMappingsArgs(t *testing.T) {
	cli, runner := newFakeCLI(map[string]cannedOutput{
		"port": {stdout: "80/tcp -> 0.0.0.0:32768\n8080/tcp -> 0.0.0.0:32769\n"},
	})

	entries, err := cli.PortMappings(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, []PortEntry{
		{Inner: "80/tcp", Outer: "0.0.0.0:32768"},
		{Inner: "8080/tcp", Outer: "0.0.0.0:32769"},
	}, entries)
	assert.Equal(t, [][]string{{"docker", "port", "abc123"}}, runner.calls)
}

func TestCLIClient_VersionArgs(t *testing.T) {
	cli, runner := newFakeCLI(map[string]cannedOutput{
		"version": {stdout: "Client: Docker Engine\n"},
	})

	out, err := cli.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Client: Docker Engine\n", out)
	assert.Equal(t, [][]string{{"docker", "version"}}, runner.calls)
}

func TestCLIClient_RunBuildsArgv(t *testing.T) {
	cli, runner := newFakeCLI(map[string]cannedOutput{
		"run": {stdout: "0123456789abcdef0123\n"},
	})

	id, err := cli.Run(context.Background(), "cds/server", RunOptions{CPUSet: "0", Publish: []string{"8080"}, Env: []string{"MAX_CPUS=1"}})
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123", id)
	assert.Equal(t, []string{"docker", "run", "-d", "--cpuset-cpus", "0", "-p", "8080", "-e", "MAX_CPUS=1", "cds/server"}, runner.calls[0])
}

func TestCLIClient_StopAndRemoveArgs(t *testing.T) {
	cli, runner := newFakeCLI(nil)

	require.NoError(t, cli.Stop(context.Background(), "abc"))
	require.NoError(t, cli.Remove(context.Background(), "abc"))
	assert.Equal(t, [][]string{
		{"docker", "stop", "abc"},
		{"docker", "rm", "--force", "abc"},
	}, runner.calls)
}

func TestCLIClient_CustomBinary(t *testing.T) {
	runner := &fakeRunner{}
	cli := NewCLIClientWithRunner("podman", runner)

	_, err := cli.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "podman", runner.calls[0][0])
}

func TestCLIClient_NonZeroExit(t *testing.T) {
	cli, _ := newFakeCLI(map[string]cannedOutput{
		"stop": {stderr: []byte("Error: no such container: abc"), code: 1},
	})

	err := cli.Stop(context.Background(), "abc")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Contains(t, err.Error(), "no such container")
}

func TestCLIClient_NonZeroExitUndecodableStderr(t *testing.T) {
	cli, _ := newFakeCLI(map[string]cannedOutput{
		"logs": {stderr: []byte{0xff, 0xfe, 'x'}, code: 2},
	})

	_, err := cli.Logs(context.Background(), "abc")
	require.ErrorIs(t, err, ErrOutputNotDecodable)
	assert.Contains(t, err.Error(), "exit code 2")
}

func TestCLIClient_LossyStdout(t *testing.T) {
	cli, _ := newFakeCLI(map[string]cannedOutput{
		"logs": {stdout: "ok \xff done"},
	})

	out, err := cli.Logs(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "ok � done", out)
}

func TestCLIClient_InvocationFailure(t *testing.T) {
	cli, _ := newFakeCLI(map[string]cannedOutput{
		"version": {err: errors.New("exec: \"docker\": executable file not found in $PATH")},
	})

	_, err := cli.Version(context.Background())
	require.ErrorIs(t, err, ErrRuntimeInvocation)
	assert.Contains(t, err.Error(), "executable file not found")
}
