package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freshRegistry resets the registration gate and registers into a new registry.
func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg), "second Register must be a no-op")
	return reg
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := freshRegistry(t)

	before := testutil.ToFloat64(processStarts)
	IncStart()
	IncStart()
	assert.Equal(t, before+2, testutil.ToFloat64(processStarts))

	IncStartFailure("bad_executable_path")
	IncTermination("SERVER_PROCESS_CRASHED")
	IncExit(true)
	IncExit(false)
	IncInitializationTimeout()
	RecordStateTransition("INITIALIZING", "ACTIVE")
	SetProcesses(map[string]int{"ACTIVE": 2}, []string{"ACTIVE", "TERMINATED"})

	assert.Equal(t, 2.0, testutil.ToFloat64(processesByStatus.WithLabelValues("ACTIVE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(processesByStatus.WithLabelValues("TERMINATED")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	want := map[string]bool{
		"gamehost_process_starts_total":                  false,
		"gamehost_process_start_failures_total":          false,
		"gamehost_process_terminations_total":            false,
		"gamehost_process_exits_total":                   false,
		"gamehost_process_initialization_timeouts_total": false,
		"gamehost_process_state_transitions_total":       false,
		"gamehost_process_processes":                     false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
			assert.NotEmpty(t, mf.GetMetric(), mf.GetName())
		}
	}
	for n, ok := range want {
		assert.True(t, ok, "expected metric %s", n)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	require.NoError(t, Register(prometheus.DefaultRegisterer))

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	IncStart()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "gamehost_process_starts_total")
}

func TestConcurrentIncrements(t *testing.T) {
	reg := freshRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart()
			IncTermination("NORMAL_TERMINATION")
			RecordStateTransition("ACTIVE", "TERMINATING")
		}()
	}
	wg.Wait()
	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestMetricsBeforeRegister(t *testing.T) {
	original := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(original)

	before := testutil.ToFloat64(processStarts)
	IncStart()
	IncStartFailure("other")
	IncTermination("x")
	IncExit(true)
	IncInitializationTimeout()
	RecordStateTransition("a", "b")
	SetProcesses(map[string]int{"a": 1}, []string{"a"})
	assert.Equal(t, before, testutil.ToFloat64(processStarts))
}

func TestRegisterError(t *testing.T) {
	original := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(original)

	err := Register(&errorRegisterer{})
	require.EqualError(t, err, "test registration error")
	assert.False(t, regOK.Load())
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}
func (e *errorRegisterer) MustRegister(...prometheus.Collector)  {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestResourceSamplerCollectsSelf(t *testing.T) {
	freshRegistry(t)
	s := NewResourceSampler(SamplerConfig{Enabled: true})
	pid := int32(os.Getpid())

	s.Collect(map[string]int32{"self": pid, "ignored": 0})
	sm, ok := s.Latest("self")
	require.True(t, ok)
	assert.Equal(t, pid, sm.PID)
	assert.Greater(t, sm.MemoryRSS, uint64(0))
	assert.Greater(t, testutil.ToFloat64(memoryRSS.WithLabelValues("self")), 0.0)
	_, ok = s.Latest("ignored")
	assert.False(t, ok)

	// a process no longer listed is forgotten
	s.Collect(map[string]int32{})
	_, ok = s.Latest("self")
	assert.False(t, ok)
}

func TestResourceSamplerForgetsUnsampledHandles(t *testing.T) {
	s := NewResourceSampler(SamplerConfig{Enabled: true})
	s.mu.Lock()
	s.procs["vanished"] = &process.Process{Pid: 999999}
	s.mu.Unlock()

	s.Collect(map[string]int32{})

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.procs)
	assert.Empty(t, s.latest)
}

func TestResourceSamplerDisabled(t *testing.T) {
	s := NewResourceSampler(SamplerConfig{})
	assert.False(t, s.IsEnabled())
	assert.Equal(t, DefaultSampleInterval, s.interval)
	s.Start(t.Context(), func() map[string]int32 { return nil })
	s.Stop()
}
