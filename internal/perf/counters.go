// Package perf counts hardware events of a container's cgroup while a
// measured program runs.
package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cds-bench/internal/logging"

	"github.com/elastic/go-perf"
	"github.com/sirupsen/logrus"
)

// CgroupRoot is where the systemd cgroup driver places docker scopes.
var CgroupRoot = "/sys/fs/cgroup/system.slice"

// Counters is the multiplex-corrected sum of one measurement window.
type Counters struct {
	Cycles          uint64 `json:"cycles"`
	Instructions    uint64 `json:"instructions"`
	CacheMisses     uint64 `json:"cache_misses"`
	CacheReferences uint64 `json:"cache_references"`
}

// IPC is instructions per cycle, 0 without cycles.
func (c *Counters) IPC() float64 {
	if c == nil || c.Cycles == 0 {
		return 0
	}
	return float64(c.Instructions) / float64(c.Cycles)
}

// CgroupPath finds the cgroup directory of a container from its (short) id.
func CgroupPath(containerID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(CgroupRoot, fmt.Sprintf("docker-%s*.scope", containerID)))
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("expected one cgroup for container %s under %s, found %d", containerID, CgroupRoot, len(matches))
	}
	return matches[0], nil
}

// Open starts counting for a running container on the given CPUs.
func Open(containerID string, cpus []int) (*Collector, error) {
	path, err := CgroupPath(containerID)
	if err != nil {
		return nil, err
	}
	return NewCollector(path, cpus)
}

type Collector struct {
	events     []*perf.Event
	cgroupFile *os.File

	mutex sync.Mutex
}

var hardwareCounters = []perf.HardwareCounter{
	perf.CPUCycles,
	perf.Instructions,
	perf.CacheMisses,
	perf.CacheReferences,
}

// NewCollector opens and enables the counters for the cgroup on every CPU of
// cpus.
func NewCollector(cgroupPath string, cpus []int) (*Collector, error) {
	logger := logging.GetLogger()

	cgroupFile, err := os.Open(cgroupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cgroup path %s: %w", cgroupPath, err)
	}

	collector := &Collector{cgroupFile: cgroupFile}

	for _, cpu := range cpus {
		for _, counter := range hardwareCounters {
			attr := &perf.Attr{}
			counter.Configure(attr)
			// Enable time tracking for multiplexing correction
			attr.CountFormat.Enabled = true
			attr.CountFormat.Running = true
			event, err := perf.OpenCGroup(attr, int(cgroupFile.Fd()), cpu, nil)
			if err != nil {
				collector.Close()
				logger.WithFields(logrus.Fields{
					"counter": attr.Label,
					"cpu":     cpu,
				}).WithError(err).Debug("Failed to open perf event")
				return nil, fmt.Errorf("failed to open perf event %s on cpu %d: %w", attr.Label, cpu, err)
			}
			collector.events = append(collector.events, event)
		}
	}

	for _, event := range collector.events {
		if err := event.Enable(); err != nil {
			collector.Close()
			return nil, fmt.Errorf("failed to enable perf event: %w", err)
		}
	}

	return collector, nil
}

// Read returns the counts accumulated since the collector was opened.
func (c *Collector) Read() *Counters {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	sums := make(map[string]uint64)
	for _, event := range c.events {
		count, err := event.ReadCount()
		if err != nil {
			continue
		}
		sums[count.Label] += scale(uint64(count.Value), int64(count.Enabled), int64(count.Running))
	}

	return &Counters{
		Cycles:          sums["cpu-cycles"],
		Instructions:    sums["instructions"],
		CacheMisses:     sums["cache-misses"],
		CacheReferences: sums["cache-references"],
	}
}

// scale corrects a count for the time the event was multiplexed out.
func scale(value uint64, enabled, running int64) uint64 {
	if running <= 0 || enabled <= 0 || running == enabled {
		return value
	}
	return uint64(float64(value) * float64(enabled) / float64(running))
}

func (c *Collector) Close() {
	for _, event := range c.events {
		if event != nil {
			event.Close()
		}
	}
	c.events = nil

	if c.cgroupFile != nil {
		c.cgroupFile.Close()
		c.cgroupFile = nil
	}
}
