package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// Config controls when a Monitor pauses and resumes scheduled work.
type Config struct {
	// Limit in bytes. Zero uses the runtime's GOMEMLIMIT.
	Limit int64

	// PauseAt and ResumeAt are fractions of Limit. ResumeAt must be lower
	// so the monitor does not flap around a single threshold.
	PauseAt  float64
	ResumeAt float64

	Interval time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		PauseAt:  0.85,
		ResumeAt: 0.70,
		Interval: 5 * time.Second,
	}
}

// Monitor samples heap usage and holds back new reconciliation passes
// while usage is above the pause threshold.
type Monitor struct {
	config    Config
	limit     int64
	readAlloc func() uint64

	mu      sync.RWMutex
	current uint64
	paused  bool
	resume  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a Monitor. With no limit from config or GOMEMLIMIT
// the monitor never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.Limit
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.ResumeAt <= 0 || config.ResumeAt >= config.PauseAt {
		config.ResumeAt = config.PauseAt * 0.8
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
		resume:    make(chan struct{}),
		stop:      make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins sampling. It does nothing when no limit is known.
func (m *Monitor) Start() {
	if m.limit <= 0 {
		logging.Warn("Memory monitor: no memory limit configured, backpressure disabled")
		return
	}
	logging.Info("Memory monitor: pausing passes above %.0f%% of %s", m.config.PauseAt*100, formatBytes(m.limit))
	go m.loop()
}

// Stop ends sampling and releases any caller blocked in WaitIfPaused.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) sample() {
	alloc := m.readAlloc()
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = alloc

	switch {
	case !m.paused && usage >= m.config.PauseAt:
		logging.Warn("Memory at %.1f%% of limit, pausing reconciliation passes", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.ResumeAt:
		logging.Info("Memory at %.1f%% of limit, resuming reconciliation passes", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// WaitIfPaused blocks while the monitor is paused. It returns false if the
// monitor is stopped first.
func (m *Monitor) WaitIfPaused() bool {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return true
	}
	resume := m.resume
	m.mu.RUnlock()

	select {
	case <-resume:
		return true
	case <-m.stop:
		return false
	}
}

// Paused reports whether passes are currently held back.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled heap allocation as a fraction of the
// limit, or 0 without a limit.
func (m *Monitor) Usage() float64 {
	if m.limit <= 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.current) / float64(m.limit)
}
