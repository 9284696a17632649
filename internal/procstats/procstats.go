// Package procstats samples a single child process's own CPU and memory
// usage by PID via gopsutil, tracking the encoder child an AVSession
// owns rather than the whole host.
package procstats

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/lanternops/avgateway/internal/logging"
)

var log = logging.L("procstats")

// Sample is one CPU/RSS observation of a tracked process.
type Sample struct {
	CPUPercent float64
	RSSBytes   uint64
}

// Sampler periodically reads a child process's own resource usage by
// PID and reports it through a callback, for folding into the
// encoder's stats event as the processCPUPercent / processRSSBytes
// fields.
type Sampler struct {
	pid      int32
	interval time.Duration
	onSample func(Sample)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler constructs a Sampler for pid, polling at interval (1s if
// <= 0) and invoking onSample on each successful read. A failed read
// (process exited, permission denied) is logged and skipped rather than
// treated as fatal: procstats is a best-effort enrichment, never a
// liveness signal.
func NewSampler(pid int32, interval time.Duration, onSample func(Sample)) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{pid: pid, interval: interval, onSample: onSample}
}

// Start begins sampling in a background goroutine. Stop cancels it.
func (s *Sampler) Start(ctx context.Context) {
	sampleCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(sampleCtx)
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)

	proc, err := process.NewProcessWithContext(ctx, s.pid)
	if err != nil {
		log.Debug("procstats: process lookup failed", "pid", s.pid, "error", err)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := read(ctx, proc)
			if err != nil {
				log.Debug("procstats: sample failed", "pid", s.pid, "error", err)
				continue
			}
			if s.onSample != nil {
				s.onSample(sample)
			}
		}
	}
}

func read(ctx context.Context, proc *process.Process) (Sample, error) {
	cpuPct, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}
	return Sample{CPUPercent: cpuPct, RSSBytes: memInfo.RSS}, nil
}

// Stop cancels the sampling goroutine and waits for it to return. Safe
// to call on a Sampler whose Start was never called.
func (s *Sampler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
