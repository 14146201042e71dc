package cmd

import (
	"fmt"
	"strings"

	"cds-bench/internal/config"

	"github.com/spf13/cobra"
)

type flagValues struct {
	configFile string
	image      string
	container  string
	port       uint16
	input      string
	output     string
	measure    bool
	cpus       string
	runs       int
	env        []string
	runtime    string
	binary     string
	spoolDir   string
	influx     bool
	perf       bool

	// set from the root's persistent flags
	logLevel string
}

func (f *flagValues) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.configFile, "config", "", "Path to a benchmark profile (YAML)")
	flags.StringVar(&f.image, "image", "", "Docker image to use")
	flags.StringVar(&f.container, "container", "", "Docker container to use")
	flags.Uint16VarP(&f.port, "port", "p", config.DefaultPort, "Port of the CDS Server")
	flags.StringVarP(&f.input, "input", "i", "", "File containing the problem (required)")
	flags.StringVarP(&f.output, "output", "o", "", "File containing the expected output/solution")
	flags.BoolVarP(&f.measure, "measure", "m", false, "Measure-mode, run multiple times and output csv-like data (duration in micro seconds)")
	flags.StringVarP(&f.cpus, "cpus", "c", "", "Number of cpus the application is allowed to use (can be a comma-separated list in measure-mode) [default: 1,2,4, single run: 4]")
	flags.IntVarP(&f.runs, "runs", "r", config.DefaultRuns, "Number of runs to average the program runtime (only in measure-mode)")
	flags.StringArrayVarP(&f.env, "env", "e", nil, "Extra environment variable for the container (KEY=VALUE, repeatable)")
	flags.StringVar(&f.runtime, "runtime", "", "Container runtime backend: cli or api [default: cli]")
	flags.StringVar(&f.binary, "docker-binary", "", "Container runtime CLI binary [default: docker]")
	flags.StringVar(&f.spoolDir, "spool-dir", "", "Write measurement records as a gzip JSON artifact into this directory")
	flags.BoolVar(&f.influx, "influx", false, "Write measurement records to InfluxDB (INFLUXDB_* variables)")
	flags.BoolVar(&f.perf, "perf", false, "Attach cgroup hardware counters to measurement records (Linux, needs perf_event access)")
}

// buildProfile loads the profile file if given and lays explicitly set flags
// over it.
func buildProfile(cmd *cobra.Command, args []string, f *flagValues) (*config.Profile, error) {
	profile := &config.Profile{}
	if f.configFile != "" {
		loaded, err := config.LoadProfile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		profile = loaded
	}

	if len(args) > 0 {
		profile.Program = args[0]
	}

	changed := cmd.Flags().Changed
	if changed("image") {
		profile.Image = f.image
	}
	if changed("container") {
		profile.Container = f.container
	}
	if changed("port") {
		profile.Port = f.port
	}
	if changed("input") {
		profile.Input = f.input
	}
	if changed("output") {
		profile.Output = f.output
	}
	if changed("measure") {
		profile.Measure = f.measure
	}
	if changed("cpus") {
		profile.CPUs = f.cpus
	}
	if changed("runs") {
		runs := f.runs
		profile.Runs = &runs
	}
	if changed("runtime") {
		profile.Runtime.Backend = f.runtime
	}
	if changed("docker-binary") {
		profile.Runtime.Binary = f.binary
	}
	if changed("spool-dir") {
		profile.Report.SpoolDir = f.spoolDir
	}
	if changed("influx") {
		profile.Report.Influx = f.influx
	}
	if changed("perf") {
		profile.Perf = f.perf
	}
	if f.logLevel != "" {
		profile.LogLevel = f.logLevel
	}

	for _, kv := range f.env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
		}
		if profile.Env == nil {
			profile.Env = make(map[string]string)
		}
		profile.Env[key] = value
	}

	applyEnvironment(profile)
	profile.ApplyDefaults()
	return profile, nil
}
