package common

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceStats is a snapshot of process and host resource usage.
type ResourceStats struct {
	Goroutines      int     `json:"goroutines"`
	HeapAllocBytes  uint64  `json:"heap_alloc_bytes"`
	NumGC           uint32  `json:"num_gc"`
	ProcessRSSBytes uint64  `json:"process_rss_bytes,omitempty"`
	ProcessCPU      float64 `json:"process_cpu_percent,omitempty"`
	HostCPUs        int     `json:"host_cpus,omitempty"`
	HostMemTotal    uint64  `json:"host_mem_total_bytes,omitempty"`
	HostMemUsedPct  float64 `json:"host_mem_used_percent,omitempty"`
}

// CollectResourceStats gathers runtime statistics and, where the platform
// allows, process and host figures. Host lookups that fail are left zero.
func CollectResourceStats(ctx context.Context) ResourceStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := ResourceStats{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
		NumGC:          ms.NumGC,
	}

	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			stats.ProcessRSSBytes = mi.RSS
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			stats.ProcessCPU = pct
		}
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		stats.HostCPUs = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.HostMemTotal = vm.Total
		stats.HostMemUsedPct = vm.UsedPercent
	}
	return stats
}
