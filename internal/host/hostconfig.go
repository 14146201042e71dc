package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"cds-bench/internal/logging"

	"github.com/intel/goresctrl/pkg/rdt"
	"github.com/sirupsen/logrus"
)

// HostConfig describes the machine a measurement ran on. It is attached to
// exported sessions so durations can be compared across hosts.
type HostConfig struct {
	Hostname      string `json:"hostname"`
	OSInfo        string `json:"os_info"`
	KernelVersion string `json:"kernel_version"`

	CPUVendor   string `json:"cpu_vendor"`
	CPUModel    string `json:"cpu_model"`
	LogicalCPUs int    `json:"logical_cpus"`
	NumSockets  int    `json:"num_sockets"`

	L3CacheBytes int64 `json:"l3_cache_bytes"`

	RDT RDTConfig `json:"rdt"`
}

// RDTConfig tells whether Intel RDT could interfere with or explain
// cache-sensitive timings.
type RDTConfig struct {
	Supported          bool                `json:"supported"`
	MonitoringFeatures map[string][]string `json:"monitoring_features,omitempty"`
}

var (
	globalHostConfig *HostConfig
	hostConfigOnce   sync.Once
)

// GetHostConfig returns the host description, probing it on first use.
func GetHostConfig() *HostConfig {
	hostConfigOnce.Do(func() {
		globalHostConfig = initializeHostConfig()
	})
	return globalHostConfig
}

func initializeHostConfig() *HostConfig {
	logger := logging.GetLogger()

	hc := &HostConfig{
		OSInfo:        runtime.GOOS + "/" + runtime.GOARCH,
		KernelVersion: "unknown",
		LogicalCPUs:   runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		hc.Hostname = hostname
	} else {
		hc.Hostname = "unknown"
	}

	if data, err := os.ReadFile("/proc/version"); err == nil {
		if version := strings.Fields(string(data)); len(version) >= 3 {
			hc.KernelVersion = version[2]
		}
	}

	if f, err := os.Open("/proc/cpuinfo"); err == nil {
		hc.CPUVendor, hc.CPUModel, hc.NumSockets = parseCPUInfo(f)
		f.Close()
	} else {
		hc.CPUVendor, hc.CPUModel, hc.NumSockets = "unknown", "unknown", 1
	}

	if size, err := l3CacheSize(); err == nil {
		hc.L3CacheBytes = size
	} else {
		logger.WithError(err).Debug("L3 cache size unavailable")
	}

	hc.initRDTInfo()

	logger.WithFields(logrus.Fields{
		"cpu_model":     hc.CPUModel,
		"logical_cpus":  hc.LogicalCPUs,
		"rdt_supported": hc.RDT.Supported,
	}).Debug("Host configuration initialized")

	return hc
}

// parseCPUInfo extracts vendor, model and socket count from /proc/cpuinfo.
func parseCPUInfo(r io.Reader) (vendor, model string, sockets int) {
	physicalIDs := make(map[string]bool)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "vendor_id":
			if vendor == "" {
				vendor = value
			}
		case "model name":
			if model == "" {
				model = value
			}
		case "physical id":
			physicalIDs[value] = true
		}
	}

	if vendor == "" {
		vendor = "unknown"
	}
	if model == "" {
		model = "unknown"
	}
	sockets = len(physicalIDs)
	if sockets == 0 {
		sockets = 1
	}
	return vendor, model, sockets
}

func l3CacheSize() (int64, error) {
	cachePaths := []string{
		"/sys/devices/system/cpu/cpu0/cache/index3/size",
		"/sys/devices/system/cpu/cpu0/cache/index2/size", // Some systems use index2 for L3
	}

	for _, path := range cachePaths {
		if data, err := os.ReadFile(path); err == nil {
			if size, err := parseCacheSize(string(data)); err == nil {
				return size, nil
			}
		}
	}

	return 0, fmt.Errorf("could not determine L3 cache size")
}

// parseCacheSize parses sysfs sizes like "8192K", "32M" or "8388608".
func parseCacheSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier, s = 1024, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier, s = 1024*1024, strings.TrimSuffix(s, "M")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache size %q: %w", s, err)
	}
	return n * multiplier, nil
}

func (hc *HostConfig) initRDTInfo() {
	logger := logging.GetLogger()

	if err := rdt.Initialize(""); err != nil {
		logger.WithError(err).Debug("RDT not available")
		return
	}

	hc.RDT.Supported = rdt.MonSupported()
	if !hc.RDT.Supported {
		return
	}

	hc.RDT.MonitoringFeatures = make(map[string][]string)
	for resource, features := range rdt.GetMonFeatures() {
		hc.RDT.MonitoringFeatures[string(resource)] = features
	}
}

// OversubscribedCounts returns the CPU counts of plan that exceed the host's
// logical CPUs. Pinning such containers fails in the runtime.
func (hc *HostConfig) OversubscribedCounts(plan []int) []int {
	var over []int
	for _, n := range plan {
		if n > hc.LogicalCPUs {
			over = append(over, n)
		}
	}
	return over
}
