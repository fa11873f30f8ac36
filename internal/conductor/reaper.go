package conductor

import (
	"log/slog"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// StartReaper runs a low-frequency background sweep that detects workers
// whose process has exited even though nothing has looked up their
// bucket recently, resolving spec.md §9's open question in favor of
// implementing an opportunistic reaper rather than relying solely on
// lookup-time purging. It does not change pool semantics: the invariant
// that dead workers are purged on lookup already holds; this only makes
// the purge also happen without a lookup, the way the teacher's own
// health-check loop (startHealthCheckLoop in internal/daemon/server.go)
// periodically re-validates state nothing touched directly.
func (d *Daemon) StartReaper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				d.pool.Sweep()
				d.sweepOrphans()
			}
		}
	}()
}

// sweepOrphans cross-checks live worker PIDs against the OS process table
// via gopsutil, logging (but not killing) any worker whose process row has
// disappeared without the Go child-reaping path noticing yet — this can
// happen transiently between a process exiting and cmd.Wait() returning.
func (d *Daemon) sweepOrphans() {
	procs, err := gopsprocess.Processes()
	if err != nil {
		slog.Debug("reaper: process list unavailable", "err", err)
		return
	}
	alive := make(map[int32]bool, len(procs))
	for _, p := range procs {
		alive[p.Pid] = true
	}

	d.pool.mu.Lock()
	defer d.pool.mu.Unlock()
	for key, bucket := range d.pool.buckets {
		for _, w := range bucket {
			if w.cmd == nil || w.cmd.Process == nil {
				continue
			}
			if !alive[int32(w.cmd.Process.Pid)] {
				slog.Debug("reaper: worker process missing from process table", "worker", w.ID, "project", key)
			}
		}
	}
}
