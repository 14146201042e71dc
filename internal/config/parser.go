package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"cds-bench/internal/logging"

	"gopkg.in/yaml.v3"
)

// LoadProfile reads a YAML profile. ${VAR} references are replaced by the
// environment; unset variables are left as written.
func LoadProfile(filepath string) (*Profile, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read profile")
		return nil, err
	}

	var profile Profile
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &profile); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse profile")
		return nil, fmt.Errorf("failed to parse profile %s: %w", filepath, err)
	}

	return &profile, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

// ParseCPUPlan parses CPU counts like "4", "1,2,4" or "1-4". Order is kept
// and repeated counts are dropped.
func ParseCPUPlan(spec string) ([]int, error) {
	var counts []int
	seen := make(map[int]bool)

	add := func(n int) error {
		if n <= 0 {
			return fmt.Errorf("provided CPU count %d is not a positive number", n)
		}
		if !seen[n] {
			counts = append(counts, n)
			seen[n] = true
		}
		return nil
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid CPU count range: %s", part)
			}

			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid CPU count range start: %s", rangeParts[0])
			}

			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid CPU count range end: %s", rangeParts[1])
			}

			if start > end {
				return nil, fmt.Errorf("invalid CPU count range: start > end (%d > %d)", start, end)
			}

			for i := start; i <= end; i++ {
				if err := add(i); err != nil {
					return nil, err
				}
			}
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("provided CPU count %s is not a positive number", part)
		}
		if err := add(n); err != nil {
			return nil, err
		}
	}

	if len(counts) == 0 {
		return nil, fmt.Errorf("no CPU counts specified")
	}

	return counts, nil
}

// CPUSet returns the cpuset pinning a container to the first count cores,
// e.g. "0,1,2" for 3.
func CPUSet(count int) string {
	cores := make([]string, count)
	for i := range cores {
		cores[i] = strconv.Itoa(i)
	}
	return strings.Join(cores, ",")
}

// Validate checks a profile after defaults were applied and returns its CPU
// plan.
func Validate(p *Profile) ([]int, error) {
	if p.Program == "" {
		return nil, fmt.Errorf("program is required")
	}
	if p.Input == "" {
		return nil, fmt.Errorf("input file is required")
	}
	if (p.Image == "") == (p.Container == "") {
		return nil, fmt.Errorf("exactly one of image or container is required")
	}
	if p.Measure && p.Image == "" {
		return nil, fmt.Errorf("measure mode requires an image, a fresh container is started per sample")
	}
	if p.RunCount() < 1 {
		return nil, fmt.Errorf("runs must be at least 1, got %d", p.RunCount())
	}

	plan, err := ParseCPUPlan(p.CPUs)
	if err != nil {
		return nil, fmt.Errorf("invalid cpus %q: %w", p.CPUs, err)
	}
	if !p.Measure && len(plan) != 1 {
		return nil, fmt.Errorf("multiple CPU counts (%s) are only allowed in measure mode", p.CPUs)
	}

	if p.Report.Influx {
		db := p.Report.DB
		if db.Host == "" || db.Token == "" || db.Org == "" || db.Bucket == "" {
			return nil, fmt.Errorf("incomplete database configuration")
		}
	}

	for key := range p.Env {
		if key == "" || strings.Contains(key, "=") {
			return nil, fmt.Errorf("invalid environment variable name %q", key)
		}
	}

	return plan, nil
}
