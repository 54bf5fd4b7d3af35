package adminapi

import (
	"context"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessRSS reads the resident set size of pid.
func ProcessRSS(ctx context.Context, pid int) (uint64, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, fmt.Errorf("open process %d: %w", pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read memory of process %d: %w", pid, err)
	}
	return mem.RSS, nil
}
