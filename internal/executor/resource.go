package executor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is the peak resource footprint observed for a finished
// connector subprocess.
type ResourceUsage struct {
	PeakRSSBytes uint64
	CPUPercent   float64
	Sampled      bool
}

// sampleResourceUsage polls a running process's RSS and CPU usage until ctx
// is cancelled (the caller cancels it when the process exits), returning the
// peak RSS and last observed CPU percentage seen across the samples.
func sampleResourceUsage(ctx context.Context, pid int32, interval time.Duration) ResourceUsage {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ResourceUsage{}
	}

	var usage ResourceUsage
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return usage
		case <-ticker.C:
			if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
				usage.Sampled = true
				if mem.RSS > usage.PeakRSSBytes {
					usage.PeakRSSBytes = mem.RSS
				}
			}
			if pct, err := proc.CPUPercent(); err == nil {
				usage.CPUPercent = pct
			}
		}
	}
}
