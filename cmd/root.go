// Package cmd holds the cds-bench command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cds-bench/internal/config"
	"cds-bench/internal/docker"
	"cds-bench/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "0.3.0"

// Execute builds the command tree and runs it against os.Args.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	var logLevel, logFormat string
	runFlags := &flagValues{}

	rootCmd := &cobra.Command{
		Use:     "cds-bench [flags] <program>",
		Short:   "Benchmark programs served by a CDS Server container",
		Long:    "Runs a program inside a CDS Server container over HTTP, once or as a measurement sweep over run and CPU counts",
		Version: Version,
		Args:    cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			switch logFormat {
			case "", "text":
			case "json":
				logging.SetFormatter(&logrus.JSONFormatter{})
			default:
				return fmt.Errorf("invalid log format %q, expected text or json", logFormat)
			}
			loadEnvironment()
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runFlags.logLevel = logLevel
			profile, err := buildProfile(cmd, args, runFlags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runBenchmark(ctx, profile, cmd.OutOrStdout())
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Set log format (text, json)")
	runFlags.register(rootCmd)

	validateFlags := &flagValues{}
	validateCmd := &cobra.Command{
		Use:   "validate [program]",
		Short: "Validate a benchmark profile without touching the container runtime",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validateFlags.logLevel = logLevel
			profile, err := buildProfile(cmd, args, validateFlags)
			if err != nil {
				return err
			}
			return validateProfile(profile, cmd.OutOrStdout())
		},
	}
	validateFlags.register(validateCmd)

	var checkRuntime, checkBinary string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the container runtime is usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := config.RuntimeConfig{Backend: checkRuntime, Binary: checkBinary}
			if rc.Backend == "" {
				rc.Backend = os.Getenv("CDS_BENCH_RUNTIME")
			}
			if rc.Binary == "" {
				rc.Binary = os.Getenv("CDS_BENCH_DOCKER_BINARY")
			}
			return checkRuntimeAvailable(cmd.Context(), rc, cmd.OutOrStdout())
		},
	}
	checkCmd.Flags().StringVar(&checkRuntime, "runtime", "", "Container runtime backend: cli or api [default: cli]")
	checkCmd.Flags().StringVar(&checkBinary, "docker-binary", "", "Container runtime CLI binary [default: docker]")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(checkCmd)
	return rootCmd
}

func validateProfile(profile *config.Profile, out io.Writer) error {
	logger := logging.GetLogger()

	if err := validateEnvironment(profile); err != nil {
		return err
	}
	plan, err := config.Validate(profile)
	if err != nil {
		logger.WithError(err).Error("Profile validation failed")
		return fmt.Errorf("invalid profile: %w", err)
	}
	checksum, err := config.SweepChecksum(profile, plan)
	if err != nil {
		return err
	}

	mode := "single run"
	if profile.Measure {
		mode = "measure"
	}
	fmt.Fprintf(out, "Profile is valid: program %s, %s, cpus %v, runs %d, checksum %s\n",
		profile.Program, mode, plan, profile.RunCount(), checksum)
	return nil
}

func checkRuntimeAvailable(ctx context.Context, rc config.RuntimeConfig, out io.Writer) error {
	runtime, err := docker.New(rc.Backend, rc.Binary)
	if err != nil {
		return err
	}
	defer closeRuntime(runtime)

	version, err := runtime.Version(ctx)
	if err != nil {
		return fmt.Errorf("invoking docker client failed: %w", err)
	}
	fmt.Fprintf(out, "Container runtime is usable: %s\n", strings.TrimSpace(version))
	return nil
}

func closeRuntime(runtime docker.Runtime) {
	if c, ok := runtime.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logging.GetLogger().WithError(err).Debug("Failed to close container runtime client")
		}
	}
}
