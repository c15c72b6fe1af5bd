package monitor

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrResourceLimit is returned when a validation is refused because the
// process is over its memory budget.
var ErrResourceLimit = errors.New("resource limit exceeded")

// MemoryProbe reports the process's resident memory in bytes.
type MemoryProbe func() (uint64, error)

// ProcessRSS probes the current process with gopsutil.
func ProcessRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("probe process: %w", err)
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("probe memory: %w", err)
	}
	return info.RSS, nil
}

// checkMemory refuses when probe reports more than limit bytes. A zero
// limit disables the guard. Probe failures do not refuse.
func checkMemory(probe MemoryProbe, limit uint64) (uint64, error) {
	if limit == 0 || probe == nil {
		return 0, nil
	}
	rss, err := probe()
	if err != nil {
		return 0, nil
	}
	if rss > limit {
		return rss, fmt.Errorf("%w: resident memory %d MiB over %d MiB", ErrResourceLimit, rss>>20, limit>>20)
	}
	return rss, nil
}
