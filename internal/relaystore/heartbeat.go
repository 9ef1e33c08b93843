package relaystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// RuntimeMetrics captures Go process health at a point in time.
type RuntimeMetrics struct {
	Goroutines    int
	MemoryAllocMB float64
	GCCount       uint32
}

// CollectRuntimeMetrics reads current Go runtime stats.
func CollectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
		GCCount:       mem.NumGC,
	}
}

// HeartbeatWriter writes periodic liveness probes to the heartbeats table.
type HeartbeatWriter struct {
	store    *Store
	hostname string
	pid      int
	interval time.Duration
	logger   *slog.Logger
}

// NewHeartbeatWriter creates a writer. Recommended interval: 15s.
func (s *Store) NewHeartbeatWriter(interval time.Duration, logger *slog.Logger) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatWriter{
		store:    s,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		logger:   logger,
	}
}

// Run writes one heartbeat immediately, then repeats at the configured
// interval until ctx is canceled. Call in a goroutine.
func (hw *HeartbeatWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()

	if err := hw.Write(ctx); err != nil {
		hw.logger.Error("relaystore: heartbeat write failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := hw.Write(ctx); err != nil {
				hw.logger.Error("relaystore: heartbeat write failed", "error", err)
			}
		}
	}
}

// Write records a single heartbeat row with current runtime metrics.
func (hw *HeartbeatWriter) Write(ctx context.Context) error {
	m := CollectRuntimeMetrics()
	_, err := hw.store.DB.ExecContext(ctx, `
		INSERT INTO heartbeats (hostname, pid, timestamp, goroutines, memory_alloc_mb, gc_count)
		VALUES (?,?,?,?,?,?)`,
		hw.hostname, hw.pid, time.Now().Unix(),
		m.Goroutines, m.MemoryAllocMB, m.GCCount)
	if err != nil {
		return fmt.Errorf("relaystore: insert heartbeat: %w", err)
	}
	return nil
}

// HeartbeatStatus is the latest recorded heartbeat, enriched with a
// staleness check so callers don't have to compute it themselves.
type HeartbeatStatus struct {
	Hostname      string    `json:"hostname"`
	PID           int       `json:"pid"`
	Timestamp     time.Time `json:"timestamp"`
	Goroutines    int       `json:"goroutines"`
	MemoryAllocMB float64   `json:"memory_alloc_mb"`
	GCCount       int       `json:"gc_count"`
	Alive         bool      `json:"alive"`
}

// LatestHeartbeat returns the most recent heartbeat, or nil when none has
// been recorded. stalenessThreshold controls the alive boundary (typically
// 3x the heartbeat interval).
func (s *Store) LatestHeartbeat(ctx context.Context, stalenessThreshold time.Duration) (*HeartbeatStatus, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT hostname, pid, timestamp, goroutines, memory_alloc_mb, gc_count
		FROM heartbeats ORDER BY timestamp DESC LIMIT 1`)

	var hs HeartbeatStatus
	var ts int64
	err := row.Scan(&hs.Hostname, &hs.PID, &ts, &hs.Goroutines, &hs.MemoryAllocMB, &hs.GCCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relaystore: query latest heartbeat: %w", err)
	}

	hs.Timestamp = time.Unix(ts, 0)
	hs.Alive = time.Since(hs.Timestamp) <= stalenessThreshold
	return &hs, nil
}
