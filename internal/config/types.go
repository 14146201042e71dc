package config

import (
	"fmt"
	"sort"
)

const (
	DefaultPort          = 8080
	DefaultRuns          = 3
	DefaultMeasureCPUs   = "1,2,4"
	DefaultSingleRunCPUs = "4"
)

// Profile describes one benchmark invocation. It is read from YAML and/or
// built from command line flags.
type Profile struct {
	Program   string            `yaml:"program"`
	Image     string            `yaml:"image,omitempty"`
	Container string            `yaml:"container,omitempty"`
	Port      uint16            `yaml:"port"`
	Input     string            `yaml:"input"`
	Output    string            `yaml:"output,omitempty"`
	Measure   bool              `yaml:"measure"`
	CPUs      string            `yaml:"cpus,omitempty"`
	Runs      *int              `yaml:"runs,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Perf      bool              `yaml:"perf"`
	LogLevel  string            `yaml:"log_level,omitempty"`
	Runtime   RuntimeConfig     `yaml:"runtime"`
	Report    ReportConfig      `yaml:"report"`
}

type RuntimeConfig struct {
	Backend string `yaml:"backend"`
	Binary  string `yaml:"binary"`
}

type ReportConfig struct {
	SpoolDir string         `yaml:"spool_dir,omitempty"`
	Influx   bool           `yaml:"influx"`
	DB       DatabaseConfig `yaml:"db"`
}

type DatabaseConfig struct {
	Host   string `yaml:"host"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// ApplyDefaults fills unset fields. The CPU default depends on the mode.
func (p *Profile) ApplyDefaults() {
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.Runs == nil {
		runs := DefaultRuns
		p.Runs = &runs
	}
	if p.CPUs == "" {
		if p.Measure {
			p.CPUs = DefaultMeasureCPUs
		} else {
			p.CPUs = DefaultSingleRunCPUs
		}
	}
}

// RunCount is the number of repetitions, DefaultRuns when unset. An explicit
// zero is kept so validation can reject it.
func (p *Profile) RunCount() int {
	if p.Runs == nil {
		return DefaultRuns
	}
	return *p.Runs
}

// EnvList returns the extra container environment as sorted KEY=VALUE pairs.
func (p *Profile) EnvList() []string {
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, p.Env[k]))
	}
	return env
}
