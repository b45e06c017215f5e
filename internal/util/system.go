package util

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
)

// SystemInfo contains information about the host system.
type SystemInfo struct {
	Hostname string
	NumCPU   int
	OS       string
	Arch     string
}

// GetSystemInfo collects system information.
func GetSystemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		Hostname: hostname,
		NumCPU:   runtime.NumCPU(),
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
	}
}

// AvailableMemoryBytes returns the available memory in bytes.
// Returns 0 if memory cannot be determined.
func AvailableMemoryBytes() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Available
}

// MaxWorkersForMemory calculates the maximum safe number of in-flight chunks
// based on available memory and estimated per-chunk size.
// chunkMemBytes is the estimated memory per in-flight chunk (packed pixel
// data plus encoder process overhead). memFraction is the fraction of
// available memory to use. Returns at least 1.
func MaxWorkersForMemory(chunkMemBytes uint64, memFraction float64) int {
	available := AvailableMemoryBytes()
	if available == 0 {
		return 1 // Can't determine memory, be conservative
	}

	usable := uint64(float64(available) * memFraction)
	if usable < chunkMemBytes {
		return 1
	}

	return max(int(usable/chunkMemBytes), 1)
}

// LogicalCores returns the number of logical CPU cores.
func LogicalCores() int {
	return runtime.NumCPU()
}
