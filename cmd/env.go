package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"cds-bench/internal/config"
	"cds-bench/internal/logging"

	"github.com/joho/godotenv"
)

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
		return
	}

	// Try to load from the application directory
	if execPath, err := os.Executable(); err == nil {
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
			} else {
				logger.WithField("file", envFile).Debug("Loaded environment variables")
			}
		}
	}
}

// applyEnvironment fills profile fields the profile and flags left empty.
func applyEnvironment(p *config.Profile) {
	fill := func(field *string, name string) {
		if *field == "" {
			*field = os.Getenv(name)
		}
	}
	fill(&p.Runtime.Backend, "CDS_BENCH_RUNTIME")
	fill(&p.Runtime.Binary, "CDS_BENCH_DOCKER_BINARY")
	fill(&p.Report.SpoolDir, "CDS_BENCH_SPOOL_DIR")

	db := &p.Report.DB
	fill(&db.Host, "INFLUXDB_HOST")
	fill(&db.Token, "INFLUXDB_TOKEN")
	fill(&db.Org, "INFLUXDB_ORG")
	fill(&db.Bucket, "INFLUXDB_BUCKET")
}

func validateEnvironment(p *config.Profile) error {
	logger := logging.GetLogger()

	if !p.Report.Influx {
		return nil
	}

	required := map[string]string{
		"INFLUXDB_HOST":   p.Report.DB.Host,
		"INFLUXDB_TOKEN":  p.Report.DB.Token,
		"INFLUXDB_ORG":    p.Report.DB.Org,
		"INFLUXDB_BUCKET": p.Report.DB.Bucket,
	}

	var missing []string
	for _, name := range []string{"INFLUXDB_HOST", "INFLUXDB_TOKEN", "INFLUXDB_ORG", "INFLUXDB_BUCKET"} {
		if required[name] == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		logger.WithField("missing_vars", missing).Error("Missing required environment variables")
		return fmt.Errorf("missing required environment variables: %v. Please ensure your .env file or profile contains these variables", missing)
	}

	logger.Debug("All required environment variables are present")
	return nil
}
