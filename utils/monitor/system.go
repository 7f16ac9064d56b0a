package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"go.uber.org/zap"
)

// SystemMonitor samples Go runtime statistics into RuntimeMetrics.
type SystemMonitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	metrics  *metrics.RuntimeMetrics
	interval time.Duration

	mu   sync.RWMutex
	last Snapshot
	wg   sync.WaitGroup
}

// Snapshot is the most recent runtime sample.
type Snapshot struct {
	Goroutines  int64
	HeapAlloc   int64
	HeapObjects int64
	GCPause     time.Duration
	SampledAt   time.Time
}

// NewSystemMonitor starts sampling every interval until ctx is cancelled or Cleanup is called.
func NewSystemMonitor(ctx context.Context, m *metrics.RuntimeMetrics, interval time.Duration, logger *zap.Logger) *SystemMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	mon := &SystemMonitor{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		metrics:  m,
		interval: interval,
	}

	mon.collect()

	mon.wg.Add(1)
	go func() {
		defer mon.wg.Done()
		mon.run()
	}()

	return mon
}

func (m *SystemMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *SystemMonitor) collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s := Snapshot{
		Goroutines:  int64(runtime.NumGoroutine()),
		HeapAlloc:   int64(memStats.HeapAlloc),
		HeapObjects: int64(memStats.HeapObjects),
		GCPause:     time.Duration(memStats.PauseNs[(memStats.NumGC+255)%256]),
		SampledAt:   time.Now(),
	}

	if m.metrics != nil {
		m.metrics.Goroutines.Set(float64(s.Goroutines))
		m.metrics.HeapAlloc.Set(float64(s.HeapAlloc))
		m.metrics.HeapObjects.Set(float64(s.HeapObjects))
		m.metrics.GCPause.Set(s.GCPause.Seconds())
	}

	m.mu.Lock()
	m.last = s
	m.mu.Unlock()

	m.logger.Debug("Runtime sample",
		zap.Int64("goroutines", s.Goroutines),
		zap.Int64("heap_alloc", s.HeapAlloc))
}

// Last returns the most recent sample.
func (m *SystemMonitor) Last() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Cleanup stops sampling and waits for the sampler to exit.
func (m *SystemMonitor) Cleanup() {
	m.cancel()
	m.wg.Wait()
}
