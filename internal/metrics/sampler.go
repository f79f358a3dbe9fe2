package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultSampleInterval is used when SamplerConfig.Interval is zero.
const DefaultSampleInterval = 5 * time.Second

var (
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of a game-server process.",
		}, []string{"process_id"},
	)
	memoryRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of a game-server process.",
		}, []string{"process_id"},
	)
	numThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "num_threads",
			Help:      "Thread count of a game-server process.",
		}, []string{"process_id"},
	)
)

// Sample is one resource reading for a process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// SamplerConfig configures the ResourceSampler.
type SamplerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"sample_interval"`
}

// ResourceSampler periodically reads CPU and memory usage of live game-server
// processes with gopsutil and exports them as gauges labelled by process id.
type ResourceSampler struct {
	enabled  bool
	interval time.Duration

	mu     sync.RWMutex
	latest map[string]Sample
	procs  map[string]*process.Process

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewResourceSampler(cfg SamplerConfig) *ResourceSampler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &ResourceSampler{
		enabled:  cfg.Enabled,
		interval: interval,
		latest:   make(map[string]Sample),
		procs:    make(map[string]*process.Process),
		stopCh:   make(chan struct{}),
	}
}

func (s *ResourceSampler) IsEnabled() bool { return s.enabled }

// Start samples the processes returned by source (process id -> pid) every
// interval until ctx is done or Stop is called.
func (s *ResourceSampler) Start(ctx context.Context, source func() map[string]int32) {
	if !s.enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Collect(source())
			}
		}
	}()
}

func (s *ResourceSampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Collect takes one reading for each process and forgets processes that are
// no longer listed.
func (s *ResourceSampler) Collect(pids map[string]int32) {
	now := time.Now()
	for id, pid := range pids {
		if pid <= 0 {
			continue
		}
		sm, err := s.read(id, pid, now)
		if err != nil {
			slog.Debug("failed to sample process", "process_id", id, "pid", pid, "error", err)
			continue
		}
		s.mu.Lock()
		s.latest[id] = sm
		s.mu.Unlock()
		if regOK.Load() {
			cpuPercent.WithLabelValues(id).Set(sm.CPUPercent)
			memoryRSS.WithLabelValues(id).Set(float64(sm.MemoryRSS))
			numThreads.WithLabelValues(id).Set(float64(sm.NumThreads))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.latest {
		if _, ok := pids[id]; ok {
			continue
		}
		delete(s.latest, id)
		cpuPercent.DeleteLabelValues(id)
		memoryRSS.DeleteLabelValues(id)
		numThreads.DeleteLabelValues(id)
	}
	// handles of processes that never produced a sample
	for id := range s.procs {
		if _, ok := pids[id]; !ok {
			delete(s.procs, id)
		}
	}
}

// read reuses the gopsutil handle per process so CPUPercent measures the
// interval between samples.
func (s *ResourceSampler) read(id string, pid int32, now time.Time) (Sample, error) {
	s.mu.Lock()
	p, ok := s.procs[id]
	if !ok || p.Pid != pid {
		var err error
		p, err = process.NewProcess(pid)
		if err != nil {
			s.mu.Unlock()
			return Sample{}, fmt.Errorf("open process: %w", err)
		}
		s.procs[id] = p
	}
	s.mu.Unlock()

	cpu, err := p.Percent(0)
	if err != nil {
		cpu = 0
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("memory info: %w", err)
	}
	threads, err := p.NumThreads()
	if err != nil {
		threads = 0
	}
	return Sample{PID: pid, CPUPercent: cpu, MemoryRSS: mem.RSS, NumThreads: threads, Timestamp: now}, nil
}

// Latest returns the most recent sample for a process id.
func (s *ResourceSampler) Latest(id string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sm, ok := s.latest[id]
	return sm, ok
}
