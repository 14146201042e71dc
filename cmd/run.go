package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cds-bench/internal/config"
	"cds-bench/internal/container"
	"cds-bench/internal/docker"
	"cds-bench/internal/host"
	"cds-bench/internal/invoke"
	"cds-bench/internal/logging"
	"cds-bench/internal/measure"
	"cds-bench/internal/perf"
	"cds-bench/internal/report"

	"github.com/sirupsen/logrus"
)

func runBenchmark(ctx context.Context, profile *config.Profile, out io.Writer) error {
	logger := logging.GetLogger()

	if profile.LogLevel != "" {
		if err := logging.SetLogLevel(profile.LogLevel); err != nil {
			logger.WithField("log_level", profile.LogLevel).WithError(err).Warn("Invalid log level in profile, keeping the current one")
		}
	}

	if err := validateEnvironment(profile); err != nil {
		return err
	}
	plan, err := config.Validate(profile)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	input, err := os.ReadFile(profile.Input)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	var expected *string
	if profile.Output != "" {
		content, err := os.ReadFile(profile.Output)
		if err != nil {
			return fmt.Errorf("failed to read output file: %w", err)
		}
		s := string(content)
		expected = &s
	}

	runtime, err := docker.New(profile.Runtime.Backend, profile.Runtime.Binary)
	if err != nil {
		return fmt.Errorf("failed to create container runtime: %w", err)
	}
	defer closeRuntime(runtime)

	manager := container.NewManager(runtime)
	if err := manager.Check(ctx); err != nil {
		return fmt.Errorf("can not run docker commands: %w", err)
	}

	hostConfig := host.GetHostConfig()

	sink, spool, err := openSinks(profile, plan, hostConfig, out)
	if err != nil {
		return err
	}

	orchestrator := measure.NewOrchestrator(manager, invoke.NewInvoker(manager), out, sink)
	orchestrator.SetHostConfig(hostConfig)
	if profile.Perf {
		orchestrator.SetCounters(openPerfCounter)
	}

	logger.WithFields(logrus.Fields{
		"program": profile.Program,
		"measure": profile.Measure,
		"cpus":    plan,
		"runs":    profile.RunCount(),
		"runtime": profile.Runtime.Backend,
	}).Info("Starting benchmark")

	runErr := orchestrator.Run(ctx, measure.Options{
		Program:   profile.Program,
		Port:      profile.Port,
		Input:     input,
		Expected:  expected,
		Image:     profile.Image,
		Container: profile.Container,
		Measure:   profile.Measure,
		CPUs:      plan,
		Runs:      profile.RunCount(),
		Env:       profile.EnvList(),
	})

	closeErr := sink.Close()
	if closeErr != nil {
		logger.WithError(closeErr).Error("Failed to flush measurement records")
	}
	if spool != nil && spool.Path() != "" {
		logger.WithField("path", spool.Path()).Info("Spooled measurement records")
	}

	return errors.Join(runErr, closeErr)
}

// openSinks always reports to out and adds the exports the profile enables.
func openSinks(profile *config.Profile, plan []int, hostConfig *host.HostConfig, out io.Writer) (report.Sink, *report.Spool, error) {
	sinks := report.Multi{report.NewTable(out)}

	if profile.Report.SpoolDir == "" && !profile.Report.Influx {
		return sinks, nil, nil
	}

	checksum, err := config.SweepChecksum(profile, plan)
	if err != nil {
		return nil, nil, err
	}
	image := profile.Image
	if image == "" {
		image = profile.Container
	}
	session := report.Session{
		Program:   profile.Program,
		Image:     image,
		Checksum:  checksum,
		CPUs:      plan,
		Runs:      profile.RunCount(),
		StartTime: time.Now(),
		Host:      hostConfig,
	}

	var spool *report.Spool
	if profile.Report.SpoolDir != "" {
		spool = report.NewSpool(profile.Report.SpoolDir, session)
		sinks = append(sinks, spool)
	}
	if profile.Report.Influx {
		influx, err := report.NewInfluxDBClient(profile.Report.DB, session)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sinks = append(sinks, influx)
	}
	return sinks, spool, nil
}

// openPerfCounter keeps a failed open from turning into a non-nil Counter
// holding a nil *perf.Collector.
func openPerfCounter(containerID string, cpus []int) (measure.Counter, error) {
	collector, err := perf.Open(containerID, cpus)
	if err != nil {
		return nil, err
	}
	return collector, nil
}
