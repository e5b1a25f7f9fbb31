package async

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/AMS/errors"
)

const bytesPerGB = 1 << 30

// SystemMetrics is a snapshot of worker and memory usage
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active"`
	WorkersTotal  int     `json:"workers_total"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
}

func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to read virtual memory")
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count for the available memory.
// A worker holds one parsed PBCore document plus its mapped aggregate.
func calculateSafeWorkerCount(availableGB float64) int {
	const memoryPerWorker = 0.5 // GB
	const memoryBuffer = 1.0    // GB reserved for the rest of the system

	recommended := int((availableGB - memoryBuffer) / memoryPerWorker)
	return max(1, min(recommended, 32))
}

// GetSystemMetrics returns current resource usage. Memory figures are zero
// when the platform does not report them.
func (wp *WorkerPool) GetSystemMetrics(ctx context.Context) SystemMetrics {
	m := SystemMetrics{WorkersTotal: wp.workers}
	if total, available, err := getMemoryStats(); err == nil && total > 0 {
		m.MemoryTotalGB = float64(total) / bytesPerGB
		m.MemoryUsedGB = float64(total-available) / bytesPerGB
		m.MemoryPercent = m.MemoryUsedGB / m.MemoryTotalGB * 100
	}
	if stats, err := wp.queue.GetStats(ctx); err == nil {
		m.JobsQueued, m.JobsRunning = stats.Queued, stats.Running
	}

	wp.mu.Lock()
	m.WorkersActive = wp.activeWorkers
	wp.mu.Unlock()
	return m
}

// checkMemoryPressure returns a warning when the worker count exceeds what
// available memory supports, empty string otherwise
func (wp *WorkerPool) checkMemoryPressure() string {
	total, available, err := getMemoryStats()
	if err != nil {
		return ""
	}
	availableGB := float64(available) / bytesPerGB
	totalGB := float64(total) / bytesPerGB
	if recommended := calculateSafeWorkerCount(availableGB); wp.workers > recommended {
		return fmt.Sprintf("%d workers exceed the %d recommended for %.1f of %.1fGB in use; consider lowering pulse.workers",
			wp.workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
