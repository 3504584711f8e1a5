package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitoringStats is the snapshot served by the debug endpoint.
type MonitoringStats struct {
	// --- DELIVERY METRICS ---
	MessagesPublished uint64 `json:"messages_published"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	MessagesDropped   uint64 `json:"messages_dropped"`
	SinkFailures      uint64 `json:"sink_failures"`
	IndexedMessages   uint64 `json:"indexed_messages"`

	// --- SESSION METRICS ---
	SessionsOpened uint64 `json:"sessions_opened"`
	SessionsClosed uint64 `json:"sessions_closed"`
	ActiveSinks    int    `json:"active_sinks"`

	// --- SYSTEM METRICS ---
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
	UpdatedAt  string  `json:"updated_at"`
}

// MonitoringManager aggregates delivery counters.
// All methods are safe on a nil receiver so components can run without monitoring.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	activeSinks func() int
	self        *process.Process

	published    uint64
	delivered    uint64
	dropped      uint64
	sinkFailures uint64
	indexed      uint64
	opened       uint64
	closed       uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	mm := &MonitoringManager{log: log}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
	} else {
		mm.self = p
	}
	return mm
}

// TrackActiveSinks registers the function used to sample the broker registry size.
func (mm *MonitoringManager) TrackActiveSinks(fn func() int) {
	if mm == nil {
		return
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.activeSinks = fn
}

func (mm *MonitoringManager) IncrPublished() {
	if mm != nil {
		atomic.AddUint64(&mm.published, 1)
	}
}

func (mm *MonitoringManager) IncrDelivered() {
	if mm != nil {
		atomic.AddUint64(&mm.delivered, 1)
	}
}

func (mm *MonitoringManager) IncrDropped() {
	if mm != nil {
		atomic.AddUint64(&mm.dropped, 1)
	}
}

func (mm *MonitoringManager) IncrSinkFailures() {
	if mm != nil {
		atomic.AddUint64(&mm.sinkFailures, 1)
	}
}

func (mm *MonitoringManager) IncrIndexed() {
	if mm != nil {
		atomic.AddUint64(&mm.indexed, 1)
	}
}

func (mm *MonitoringManager) IncrSessionsOpened() {
	if mm != nil {
		atomic.AddUint64(&mm.opened, 1)
	}
}

func (mm *MonitoringManager) IncrSessionsClosed() {
	if mm != nil {
		atomic.AddUint64(&mm.closed, 1)
	}
}

// Run refreshes the snapshot every interval until ctx is done.
func (mm *MonitoringManager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return nil
		case <-ticker.C:
			mm.Refresh()
		}
	}
}

// Refresh recomputes the snapshot from the counters and the process stats.
func (mm *MonitoringManager) Refresh() {
	if mm == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()

	mm.latestStats.MessagesPublished = atomic.LoadUint64(&mm.published)
	mm.latestStats.MessagesDelivered = atomic.LoadUint64(&mm.delivered)
	mm.latestStats.MessagesDropped = atomic.LoadUint64(&mm.dropped)
	mm.latestStats.SinkFailures = atomic.LoadUint64(&mm.sinkFailures)
	mm.latestStats.IndexedMessages = atomic.LoadUint64(&mm.indexed)
	mm.latestStats.SessionsOpened = atomic.LoadUint64(&mm.opened)
	mm.latestStats.SessionsClosed = atomic.LoadUint64(&mm.closed)
	if mm.activeSinks != nil {
		mm.latestStats.ActiveSinks = mm.activeSinks()
	}

	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.Goroutines = runtime.NumGoroutine()
	if mm.self != nil {
		if memInfo, err := mm.self.MemoryInfo(); err == nil {
			mm.latestStats.RSSBytes = memInfo.RSS
		}
		if cpu, err := mm.self.CPUPercent(); err == nil {
			mm.latestStats.CPUPercent = cpu
		}
	}
	mm.latestStats.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	mm.log.Debug("Stats updated",
		"published", mm.latestStats.MessagesPublished,
		"delivered", mm.latestStats.MessagesDelivered,
		"active_sinks", mm.latestStats.ActiveSinks,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	if mm == nil {
		return MonitoringStats{}
	}
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
