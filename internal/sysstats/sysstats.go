// Package sysstats samples system and process resource usage for probe statistics.
package sysstats

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Snapshot is one sample. Memory is in kilobytes, CPU in percent.
type Snapshot struct {
	CPUIdle     float32
	MemFree     uint64
	MemTotal    uint64
	ProcCPUUser float32
	ProcCPUSys  float32
	ProcMemVzs  uint64
	ProcMemRss  uint64
	Threads     uint32
}

// Collector samples the current process. Process CPU shares are computed over the
// time since the previous Collect.
type Collector struct {
	proc *process.Process
	now  func() time.Time

	lastAt   time.Time
	lastUser float64
	lastSys  float64
}

// New creates a collector for the running process.
func New() (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect own process: %w", err)
	}
	c := &Collector{proc: proc, now: time.Now}
	// Prime the CPU baselines.
	_, _ = cpu.Percent(0, false)
	if t, err := proc.Times(); err == nil {
		c.lastAt, c.lastUser, c.lastSys = c.now(), t.User, t.System
	}
	return c, nil
}

// Collect takes a sample. Partial failures leave the affected values at zero and are
// reported in the returned error.
func (c *Collector) Collect() (Snapshot, error) {
	var s Snapshot
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if pct, err := cpu.Percent(0, false); err != nil {
		keep(fmt.Errorf("cpu usage: %w", err))
	} else if len(pct) > 0 {
		s.CPUIdle = float32(100 - pct[0])
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		keep(fmt.Errorf("memory usage: %w", err))
	} else {
		s.MemFree = vm.Free / 1024
		s.MemTotal = vm.Total / 1024
	}

	now := c.now()
	if t, err := c.proc.Times(); err != nil {
		keep(fmt.Errorf("process cpu times: %w", err))
	} else {
		if !c.lastAt.IsZero() {
			s.ProcCPUUser = share(t.User-c.lastUser, now.Sub(c.lastAt))
			s.ProcCPUSys = share(t.System-c.lastSys, now.Sub(c.lastAt))
		}
		c.lastAt, c.lastUser, c.lastSys = now, t.User, t.System
	}

	if mi, err := c.proc.MemoryInfo(); err != nil {
		keep(fmt.Errorf("process memory: %w", err))
	} else {
		s.ProcMemRss = mi.RSS / 1024
		s.ProcMemVzs = mi.VMS / 1024
	}

	if n, err := c.proc.NumThreads(); err != nil {
		keep(fmt.Errorf("process threads: %w", err))
	} else {
		s.Threads = uint32(n)
	}
	return s, firstErr
}

// share converts CPU seconds spent over a wall clock interval into percent.
func share(cpuSeconds float64, wall time.Duration) float32 {
	if wall <= 0 || cpuSeconds < 0 {
		return 0
	}
	return float32(cpuSeconds / wall.Seconds() * 100)
}
