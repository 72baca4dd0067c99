package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemMetricsTracker reports host and process figures for the admin
// system endpoint
type SystemMetricsTracker struct {
	startTime time.Time
	dataDir   string
}

// NewSystemMetrics creates a new SystemMetricsTracker instance
func NewSystemMetrics(dataDir string) *SystemMetricsTracker {
	return &SystemMetricsTracker{
		startTime: time.Now(),
		dataDir:   dataDir,
	}
}

// GetUptime returns the process uptime in seconds
func (sm *SystemMetricsTracker) GetUptime() int64 {
	return int64(time.Since(sm.startTime).Seconds())
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	UsedPercent  float64 `json:"used_percent"`
	UsedBytes    uint64  `json:"used_bytes"`
	TotalBytes   uint64  `json:"total_bytes"`
	ProcessBytes uint64  `json:"process_rss_bytes"`
}

// GetMemoryUsage returns host memory usage and this process's resident set
func (sm *SystemMetricsTracker) GetMemoryUsage(ctx context.Context) (*MemoryStats, error) {
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	stats := &MemoryStats{
		UsedPercent: memInfo.UsedPercent,
		UsedBytes:   memInfo.Used,
		TotalBytes:  memInfo.Total,
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			stats.ProcessBytes = info.RSS
		}
	}

	return stats, nil
}

// DiskStats represents disk usage statistics
type DiskStats struct {
	Path        string  `json:"path"`
	UsedPercent float64 `json:"used_percent"`
	UsedBytes   uint64  `json:"used_bytes"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
}

// GetDiskUsage returns disk usage of the filesystem holding the data directory
func (sm *SystemMetricsTracker) GetDiskUsage(ctx context.Context) (*DiskStats, error) {
	diskInfo, err := disk.UsageWithContext(ctx, sm.dataDir)
	if err != nil {
		return nil, err
	}

	return &DiskStats{
		Path:        sm.dataDir,
		UsedPercent: diskInfo.UsedPercent,
		UsedBytes:   diskInfo.Used,
		TotalBytes:  diskInfo.Total,
		FreeBytes:   diskInfo.Free,
	}, nil
}

// SystemStats is the payload of the admin system endpoint
type SystemStats struct {
	UptimeSeconds int64        `json:"uptime_seconds"`
	GoRoutines    int          `json:"goroutines"`
	GoVersion     string       `json:"go_version"`
	Memory        *MemoryStats `json:"memory,omitempty"`
	Disk          *DiskStats   `json:"disk,omitempty"`
}

// Snapshot collects everything the tracker knows. Host figures that cannot
// be read are left out rather than failing the whole snapshot.
func (sm *SystemMetricsTracker) Snapshot(ctx context.Context) *SystemStats {
	stats := &SystemStats{
		UptimeSeconds: sm.GetUptime(),
		GoRoutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
	}
	if m, err := sm.GetMemoryUsage(ctx); err == nil {
		stats.Memory = m
	}
	if d, err := sm.GetDiskUsage(ctx); err == nil {
		stats.Disk = d
	}
	return stats
}
