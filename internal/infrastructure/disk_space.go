package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// DiskSpaceChecker reports free bytes through gopsutil
type DiskSpaceChecker struct{}

// NewDiskSpaceChecker creates a new disk space checker
func NewDiskSpaceChecker() *DiskSpaceChecker {
	return &DiskSpaceChecker{}
}

// FreeBytes returns the free space of the filesystem holding dir.
// Missing directories are resolved to their nearest existing parent.
func (c *DiskSpaceChecker) FreeBytes(dir string) (uint64, error) {
	path := existingParent(dir)
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}

func existingParent(dir string) string {
	path := filepath.Clean(dir)
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// HostResources is a point-in-time view of the host used by the health report
type HostResources struct {
	DiskFreeBytes    uint64  `json:"disk_free_bytes"`
	DiskUsedPercent  float64 `json:"disk_used_percent"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	MemoryUsedPct    float64 `json:"memory_used_percent"`
}

// ReadHostResources collects disk usage for dir and the virtual memory stats
func ReadHostResources(dir string) (*HostResources, error) {
	usage, err := disk.Usage(existingParent(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage: %w", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}
	return &HostResources{
		DiskFreeBytes:    usage.Free,
		DiskUsedPercent:  usage.UsedPercent,
		MemoryTotalBytes: vm.Total,
		MemoryUsedPct:    vm.UsedPercent,
	}, nil
}
