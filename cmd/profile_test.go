package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"cds-bench/internal/config"

	"github.com/spf13/cobra"
)

func newTestCommand(f *flagValues) *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	f.register(cmd)
	return cmd
}

func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CDS_BENCH_RUNTIME", "CDS_BENCH_DOCKER_BINARY", "CDS_BENCH_SPOOL_DIR",
		"INFLUXDB_HOST", "INFLUXDB_TOKEN", "INFLUXDB_ORG", "INFLUXDB_BUCKET",
	} {
		t.Setenv(name, "")
	}
}

func TestBuildProfile_FlagsOnly(t *testing.T) {
	clearEnvironment(t)
	f := &flagValues{}
	cmd := newTestCommand(f)
	if err := cmd.ParseFlags([]string{"--image", "cds:latest", "-i", "in.txt", "-m", "-c", "1,2", "-r", "5", "-e", "FOO=bar"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	p, err := buildProfile(cmd, []string{"fib"}, f)
	if err != nil {
		t.Fatalf("buildProfile: %v", err)
	}
	if p.Program != "fib" || p.Image != "cds:latest" || p.Input != "in.txt" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if !p.Measure || p.CPUs != "1,2" || p.RunCount() != 5 {
		t.Fatalf("unexpected measure settings: %+v", p)
	}
	if p.Port != config.DefaultPort {
		t.Fatalf("port = %d, want default %d", p.Port, config.DefaultPort)
	}
	if p.Env["FOO"] != "bar" {
		t.Fatalf("env = %v", p.Env)
	}
}

func TestBuildProfile_DefaultCPUsDependOnMode(t *testing.T) {
	clearEnvironment(t)
	f := &flagValues{}
	cmd := newTestCommand(f)
	if err := cmd.ParseFlags([]string{"--container", "abc", "-i", "in.txt"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	p, err := buildProfile(cmd, []string{"fib"}, f)
	if err != nil {
		t.Fatalf("buildProfile: %v", err)
	}
	if p.CPUs != config.DefaultSingleRunCPUs {
		t.Fatalf("cpus = %q, want %q", p.CPUs, config.DefaultSingleRunCPUs)
	}
	if p.RunCount() != config.DefaultRuns {
		t.Fatalf("runs = %d, want %d", p.RunCount(), config.DefaultRuns)
	}
}

func TestBuildProfile_FlagsOverrideProfileFile(t *testing.T) {
	clearEnvironment(t)
	path := filepath.Join(t.TempDir(), "profile.yml")
	content := `program: sort
image: cds:1
port: 9000
input: problem.txt
measure: true
cpus: "1,2,4"
runs: 2
env:
  A: "1"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	f := &flagValues{}
	cmd := newTestCommand(f)
	if err := cmd.ParseFlags([]string{"--config", path, "-r", "7", "-e", "B=2"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	p, err := buildProfile(cmd, nil, f)
	if err != nil {
		t.Fatalf("buildProfile: %v", err)
	}
	if p.Program != "sort" || p.Image != "cds:1" || p.Port != 9000 {
		t.Fatalf("profile file values lost: %+v", p)
	}
	if p.RunCount() != 7 {
		t.Fatalf("runs = %d, want flag value 7", p.RunCount())
	}
	if p.CPUs != "1,2,4" {
		t.Fatalf("cpus = %q, want profile value", p.CPUs)
	}
	if p.Env["A"] != "1" || p.Env["B"] != "2" {
		t.Fatalf("env = %v", p.Env)
	}
}

func TestBuildProfile_RejectsMalformedEnv(t *testing.T) {
	clearEnvironment(t)
	f := &flagValues{}
	cmd := newTestCommand(f)
	if err := cmd.ParseFlags([]string{"-e", "NOVALUE"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if _, err := buildProfile(cmd, []string{"fib"}, f); err == nil {
		t.Fatalf("expected error for --env without '='")
	}
}

func TestBuildProfile_EnvironmentFillsGaps(t *testing.T) {
	clearEnvironment(t)
	t.Setenv("CDS_BENCH_RUNTIME", "api")
	t.Setenv("CDS_BENCH_SPOOL_DIR", "/tmp/spool")
	t.Setenv("INFLUXDB_HOST", "http://localhost:8086")

	f := &flagValues{}
	cmd := newTestCommand(f)
	if err := cmd.ParseFlags([]string{"--runtime", "cli"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	p, err := buildProfile(cmd, []string{"fib"}, f)
	if err != nil {
		t.Fatalf("buildProfile: %v", err)
	}
	if p.Runtime.Backend != "cli" {
		t.Fatalf("backend = %q, flag must win over environment", p.Runtime.Backend)
	}
	if p.Report.SpoolDir != "/tmp/spool" {
		t.Fatalf("spool dir = %q", p.Report.SpoolDir)
	}
	if p.Report.DB.Host != "http://localhost:8086" {
		t.Fatalf("db host = %q", p.Report.DB.Host)
	}
}

func TestValidateEnvironment_MissingInfluxVariables(t *testing.T) {
	p := &config.Profile{Report: config.ReportConfig{Influx: true}}
	p.Report.DB.Host = "http://localhost:8086"
	if err := validateEnvironment(p); err == nil {
		t.Fatalf("expected error for missing influx variables")
	}

	p.Report.Influx = false
	if err := validateEnvironment(p); err != nil {
		t.Fatalf("unexpected error without influx: %v", err)
	}
}

func TestBuildProfile_ZeroRunsIsRejected(t *testing.T) {
	clearEnvironment(t)
	f := &flagValues{}
	cmd := newTestCommand(f)
	if err := cmd.ParseFlags([]string{"--image", "img", "-i", "in.txt", "-m", "-r", "0"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	p, err := buildProfile(cmd, []string{"fib"}, f)
	if err != nil {
		t.Fatalf("buildProfile: %v", err)
	}
	if p.RunCount() != 0 {
		t.Fatalf("runs = %d, want the explicit 0", p.RunCount())
	}
	if _, err := config.Validate(p); err == nil {
		t.Fatalf("expected validation error for zero runs")
	}
}
