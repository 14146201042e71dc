// Package measure drives benchmark runs: it provisions CDS server
// containers, invokes the program and reports the outcome.
package measure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"cds-bench/internal/config"
	"cds-bench/internal/container"
	"cds-bench/internal/docker"
	"cds-bench/internal/host"
	"cds-bench/internal/invoke"
	"cds-bench/internal/logging"
	"cds-bench/internal/perf"
	"cds-bench/internal/report"

	"github.com/sirupsen/logrus"
)

type Lifecycle interface {
	Start(ctx context.Context, image string, opts docker.RunOptions) (container.Handle, error)
	Stop(ctx context.Context, containerID string, remove bool) error
}

type Runner interface {
	Run(ctx context.Context, ref string, port uint16, program string, stdin []byte) (invoke.Result, error)
}

// Counter reads hardware counters of a running container.
type Counter interface {
	Read() *perf.Counters
	Close()
}

type CounterOpener func(containerID string, cpus []int) (Counter, error)

type Options struct {
	Program string
	Port    uint16
	Input   []byte
	// Expected is compared byte for byte with stdout when set.
	Expected *string

	Image     string
	Container string

	Measure bool
	CPUs    []int
	Runs    int
	Env     []string
}

type Orchestrator struct {
	lifecycle Lifecycle
	runner    Runner
	out       io.Writer
	sink      report.Sink
	counters  CounterOpener
	host      *host.HostConfig
}

// NewOrchestrator writes single-shot output to out and measurement records to
// sink.
func NewOrchestrator(lifecycle Lifecycle, runner Runner, out io.Writer, sink report.Sink) *Orchestrator {
	return &Orchestrator{
		lifecycle: lifecycle,
		runner:    runner,
		out:       out,
		sink:      sink,
	}
}

// SetCounters enables hardware counters per sample in measure mode.
func (o *Orchestrator) SetCounters(opener CounterOpener) {
	o.counters = opener
}

// SetHostConfig lets the orchestrator warn about CPU counts the host cannot
// provide.
func (o *Orchestrator) SetHostConfig(hc *host.HostConfig) {
	o.host = hc
}

func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	logger := logging.GetLogger()

	if len(opts.CPUs) == 0 {
		return fmt.Errorf("no CPU counts given")
	}
	if o.host != nil {
		if over := o.host.OversubscribedCounts(opts.CPUs); len(over) > 0 {
			logger.WithFields(logrus.Fields{
				"cpu_counts":   over,
				"logical_cpus": o.host.LogicalCPUs,
			}).Warn("CPU counts exceed the host's logical CPUs")
		}
	}

	if opts.Measure {
		return o.measure(ctx, opts)
	}
	return o.runOnce(ctx, opts)
}

func (o *Orchestrator) runOnce(ctx context.Context, opts Options) (err error) {
	handle := container.Handle{ID: opts.Container}

	if opts.Image != "" {
		cpus := opts.CPUs[0]
		env := append([]string{
			"MAX_CPUS=" + strconv.Itoa(cpus),
			"REST_PORT=" + strconv.Itoa(int(opts.Port)),
		}, opts.Env...)

		started, startErr := o.lifecycle.Start(ctx, opts.Image, runOptions(cpus, opts.Port, env))
		if startErr != nil {
			return fmt.Errorf("starting of measurement container failed: %w", startErr)
		}
		handle = started
	}

	// Teardown must happen even if the run was interrupted.
	defer func() {
		if !handle.Created {
			return
		}
		fmt.Fprint(o.out, "Stopping container ... ")
		if stopErr := o.lifecycle.Stop(context.WithoutCancel(ctx), handle.ID, true); stopErr != nil {
			fmt.Fprintln(o.out, "FAILED")
			err = errors.Join(err, fmt.Errorf("deleting container failed: %w", stopErr))
			return
		}
		fmt.Fprintln(o.out, "DONE")
	}()

	res, err := o.runner.Run(ctx, handle.ID, opts.Port, opts.Program, opts.Input)
	if err != nil {
		return fmt.Errorf("measuring failed: %w", err)
	}

	fmt.Fprintf(o.out, "Ran program %s\nExit status: %d\nDuration: %d micro seconds\nstdout:\n%s\nstderr:\n%s\n",
		opts.Program, res.ExitStatus, res.DurationMicros, fence(res.Stdout), fence(res.Stderr))

	if opts.Expected != nil && *opts.Expected != res.Stdout {
		return fmt.Errorf("%w:\n%s", ErrOutputMismatch, fence(*opts.Expected))
	}
	return nil
}

// measure sweeps run-major, cpu-minor and stops at the first failure. A
// container whose sample failed is left running for inspection.
func (o *Orchestrator) measure(ctx context.Context, opts Options) error {
	logger := logging.GetLogger()

	if opts.Image == "" {
		return fmt.Errorf("measure mode requires an image")
	}

	for run := 0; run < opts.Runs; run++ {
		for _, cpus := range opts.CPUs {
			record, err := o.sample(ctx, opts, run, cpus)
			if err != nil {
				return err
			}
			if err := o.sink.Emit(record); err != nil {
				return fmt.Errorf("reporting measurement failed: %w", err)
			}

			logger.WithFields(logrus.Fields{
				"program":     opts.Program,
				"run":         run,
				"cpus":        cpus,
				"duration_us": record.DurationMicros,
			}).Info("Sample recorded")
		}
	}
	return nil
}

func (o *Orchestrator) sample(ctx context.Context, opts Options, run, cpus int) (report.Record, error) {
	logger := logging.GetLogger()

	port := strconv.Itoa(int(opts.Port))
	env := append([]string{
		"MAX_CPUS=" + strconv.Itoa(cpus),
		"CDS_PORT=" + port,
		"RUST_LOG=debug",
		"REST_PORT=" + port,
	}, opts.Env...)

	handle, err := o.lifecycle.Start(ctx, opts.Image, runOptions(cpus, opts.Port, env))
	if err != nil {
		return report.Record{}, fmt.Errorf("starting of measurement container failed: %w", err)
	}
	id := handle.ID
	fields := logrus.Fields{"container_id": id, "run": run, "cpus": cpus}

	counter := o.openCounter(id, cpus)

	res, err := o.runner.Run(ctx, id, opts.Port, opts.Program, opts.Input)
	var counters *perf.Counters
	if counter != nil {
		counters = counter.Read()
		counter.Close()
	}
	if err != nil {
		logger.WithFields(fields).Warn("Leaving failed measurement container running")
		return report.Record{}, fmt.Errorf("measuring failed: %w", err)
	}

	if res.ExitStatus != 0 {
		logger.WithFields(fields).Warn("Leaving failed measurement container running")
		return report.Record{}, &NonZeroExitError{ExitStatus: res.ExitStatus, Stdout: res.Stdout, Stderr: res.Stderr}
	}

	if opts.Expected != nil && *opts.Expected != res.Stdout {
		logger.WithFields(fields).Warn("Leaving failed measurement container running")
		return report.Record{}, fmt.Errorf("measurement run terminated with unexpected output: %w\nactual stdout:\n%s\nexpected stdout:\n%s",
			ErrOutputMismatch, fence(res.Stdout), fence(*opts.Expected))
	}

	if err := o.lifecycle.Stop(ctx, id, true); err != nil {
		return report.Record{}, fmt.Errorf("deleting container failed: %w", err)
	}

	return report.Record{
		Program:        opts.Program,
		Run:            run,
		CPUs:           cpus,
		DurationMicros: res.DurationMicros,
		Perf:           counters,
	}, nil
}

// openCounter is best effort: a sample without counters is still a sample.
func (o *Orchestrator) openCounter(containerID string, cpus int) Counter {
	if o.counters == nil {
		return nil
	}
	cores := make([]int, cpus)
	for i := range cores {
		cores[i] = i
	}
	counter, err := o.counters(containerID, cores)
	if err != nil {
		logging.GetLogger().WithField("container_id", containerID).WithError(err).Warn("Hardware counters unavailable for this sample")
		return nil
	}
	return counter
}

func runOptions(cpus int, port uint16, env []string) docker.RunOptions {
	return docker.RunOptions{
		CPUSet:  config.CPUSet(cpus),
		Publish: []string{strconv.Itoa(int(port))},
		Env:     env,
	}
}
