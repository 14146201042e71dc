package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContainerList(t *testing.T) {
	got := ParseContainerList("abc123:webserver\ndef456:worker\n")
	assert.Equal(t, []ContainerEntry{
		{ID: "abc123", Name: "webserver"},
		{ID: "def456", Name: "worker"},
	}, got)
}

func TestParseContainerList_SkipsMalformedLines(t *testing.T) {
	got := ParseContainerList("\nno-colon-here\na:b:c\nabc123:web\n\n")
	assert.Equal(t, []ContainerEntry{{ID: "abc123", Name: "web"}}, got)
}

func TestParseContainerList_Empty(t *testing.T) {
	assert.Empty(t, ParseContainerList(""))
}

func TestParseImageList(t *testing.T) {
	got := ParseImageList("0123456789ab cds/server:latest\nbad line with spaces\nfedcba987654 <none>:<none>\n")
	assert.Equal(t, []ImageEntry{
		{ID: "0123456789ab", RepoTag: "cds/server:latest"},
		{ID: "fedcba987654", RepoTag: "<none>:<none>"},
	}, got)
}

func TestParsePortList(t *testing.T) {
	got := ParsePortList("80/tcp -> 0.0.0.0:32768\n443/tcp -> 0.0.0.0:32769\ngarbage\n")
	assert.Equal(t, []PortEntry{
		{Inner: "80/tcp", Outer: "0.0.0.0:32768"},
		{Inner: "443/tcp", Outer: "0.0.0.0:32769"},
	}, got)
}

func TestRunOptionsArgs(t *testing.T) {
	opts := RunOptions{
		CPUSet:  "0,1",
		Publish: []string{"8080"},
		Env:     []string{"MAX_CPUS=2", "REST_PORT=8080"},
		Extra:   []string{"--rm"},
	}
	assert.Equal(t, []string{
		"--cpuset-cpus", "0,1",
		"-p", "8080",
		"-e", "MAX_CPUS=2",
		"-e", "REST_PORT=8080",
		"--rm",
	}, opts.Args())

	assert.Empty(t, RunOptions{}.Args())
}
