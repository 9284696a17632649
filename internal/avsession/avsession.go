// Package avsession implements the per-client AV pipeline state machine:
// Init -> Starting -> Running -> Stopping -> Closed, with a Failed state
// for encoder-side faults. Each AVSession owns exactly one
// encoder.EncoderProcess and one queue.FrameQueue, and runs a
// chunk-arrival watchdog that is the sole liveness check; no data
// channel heartbeats are used.
package avsession

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanternops/avgateway/internal/encoder"
	"github.com/lanternops/avgateway/internal/logging"
	"github.com/lanternops/avgateway/internal/obsv"
	"github.com/lanternops/avgateway/internal/procstats"
	"github.com/lanternops/avgateway/internal/queue"
)

var log = logging.L("avsession")

// State is one node of the AVSession lifecycle.
type State int

const (
	Init State = iota
	Starting
	Running
	Stopping
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies an AVSession-level error for the owning
// ClientSession to react to.
type ErrorKind int

const (
	ErrorKindStart ErrorKind = iota
	ErrorKindRuntime
)

// Events are the callbacks an owning ClientSession supplies at
// construction.
type Events struct {
	OnReady   func()
	OnStats   func(encoder.Stats)
	OnTimeout func()
	OnError   func(kind ErrorKind, detail error)
	OnClosed  func()
}

// Config bundles the watchdog tuning an AVSession needs beyond the
// StreamConfig parsed from the SessionStart payload.
type Config struct {
	ChunkWaitTimeout       time.Duration
	ChunkWaitCheckInterval time.Duration
	QueueCapacity          int

	// Binaries maps a processor name to the executable path to use in
	// place of the adapter's default, for non-PATH installs.
	Binaries map[string]string

	// ResolveSink resolves the destination.Sink for the StreamConfig's
	// destination type/key, or returns needed=false when the type is
	// handled entirely by the encoder's own argument synthesis (file,
	// rtmp) and needs no Sink. Nil means no additive cloud destinations
	// are available; every StreamConfig must then use file/rtmp/"".
	ResolveSink func(ctx context.Context, destType, key string) (sink io.WriteCloser, needed bool, err error)
}

// AVSession is the per-client media pipeline: one EncoderProcess, one
// FrameQueue, and the watchdogs that bind their lifecycles together.
type AVSession struct {
	cfg    Config
	events Events

	mu    sync.Mutex
	state State

	proc    encoder.EncoderProcess
	fq      *queue.FrameQueue
	sink    io.WriteCloser
	sampler *procstats.Sampler

	procCancel context.CancelFunc

	lastProcessCPUPercent atomic.Uint64 // math.Float64bits
	lastProcessRSSBytes   atomic.Uint64

	processor string
	spawnedAt time.Time

	lastChunkTime atomic.Int64 // unix nano

	watchdogCancel context.CancelFunc
	readyOnce      sync.Once
	stopOnce       sync.Once
}

// New constructs an AVSession in state Init. Nothing is started until
// Start is called.
func New(cfg Config, events Events) *AVSession {
	if cfg.ChunkWaitTimeout <= 0 {
		cfg.ChunkWaitTimeout = 10 * time.Second
	}
	if cfg.ChunkWaitCheckInterval <= 0 {
		cfg.ChunkWaitCheckInterval = 1 * time.Second
	}
	return &AVSession{cfg: cfg, events: events, state: Init}
}

// State returns the current lifecycle state.
func (s *AVSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start constructs the adapter named by streamCfg.Processor, starts the
// readiness watchdog and the chunk-arrival watchdog, and transitions to
// Starting. It rejects a second Start while the session is already
// active.
func (s *AVSession) Start(ctx context.Context, streamCfg encoder.StreamConfig) error {
	s.mu.Lock()
	if s.state != Init {
		s.mu.Unlock()
		return fmt.Errorf("avsession: start rejected in state %s", s.state)
	}

	s.mu.Unlock()

	var sink io.WriteCloser
	if s.cfg.ResolveSink != nil {
		resolved, needed, err := s.cfg.ResolveSink(ctx, streamCfg.Destination.Type, streamCfg.Destination.Path)
		if err != nil {
			s.mu.Lock()
			s.state = Failed
			s.mu.Unlock()
			wrapped := fmt.Errorf("avsession: resolve destination sink: %w", err)
			s.emitError(ErrorKindStart, wrapped)
			return wrapped
		}
		if needed {
			sink = resolved
		}
	}

	s.mu.Lock()
	if s.state != Init {
		s.mu.Unlock()
		if sink != nil {
			_ = sink.Close()
		}
		return fmt.Errorf("avsession: start rejected in state %s", s.state)
	}

	proc, ok := encoder.New(streamCfg, encoder.Callbacks{
		OnReady: s.handleEncoderReady,
		OnStats: s.handleEncoderStats,
		OnError: s.handleEncoderError,
		Stdout:  sink,
	})
	if !ok {
		s.state = Failed
		s.mu.Unlock()
		if sink != nil {
			_ = sink.Close()
		}
		err := fmt.Errorf("avsession: unknown processor %q", streamCfg.Processor)
		s.emitError(ErrorKindStart, err)
		return err
	}

	if bin := s.cfg.Binaries[streamCfg.Processor]; bin != "" {
		if sb, ok := proc.(interface{ SetBinary(string) }); ok {
			sb.SetBinary(bin)
		}
	}

	s.proc = proc
	s.sink = sink
	s.fq = queue.New(s.cfg.QueueCapacity, encoder.FrameInterval(streamCfg.Encoder.Video.FPS), s.writeToEncoder)
	s.state = Starting
	s.processor = streamCfg.Processor
	s.spawnedAt = time.Now()
	s.lastChunkTime.Store(time.Now().UnixNano())

	procCtx, cancel := context.WithCancel(ctx)
	s.procCancel = cancel
	s.mu.Unlock()

	if err := proc.Start(procCtx); err != nil {
		s.mu.Lock()
		s.state = Failed
		s.mu.Unlock()
		s.emitError(ErrorKindStart, err)
		return err
	}

	watchdogCtx, watchdogCancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.watchdogCancel = watchdogCancel
	s.mu.Unlock()
	go s.runChunkWatchdog(watchdogCtx)

	if pp, ok := proc.(encoder.PIDProvider); ok {
		if pid, ok := pp.PID(); ok {
			sampler := procstats.NewSampler(pid, 2*time.Second, s.handleProcSample)
			s.mu.Lock()
			s.sampler = sampler
			s.mu.Unlock()
			sampler.Start(procCtx)
		}
	}

	return nil
}

// handleProcSample stores the latest procstats sample so the next
// stats event can be enriched with it; procstats never gates or drives
// AVSession state on its own.
func (s *AVSession) handleProcSample(sample procstats.Sample) {
	s.lastProcessCPUPercent.Store(math.Float64bits(sample.CPUPercent))
	s.lastProcessRSSBytes.Store(sample.RSSBytes)
}

// Put records chunk arrival and enqueues the chunk for the pacing
// worker. If the session is neither Starting nor Running, it reports a
// start error out-of-band and drops the chunk.
func (s *AVSession) Put(ctx context.Context, chunk []byte) {
	s.mu.Lock()
	state := s.state
	fq := s.fq
	s.mu.Unlock()

	if state != Running && state != Starting {
		s.emitError(ErrorKindStart, fmt.Errorf("avsession: put rejected in state %s", state))
		return
	}

	s.lastChunkTime.Store(time.Now().UnixNano())
	if fq != nil {
		fq.Put(ctx, chunk)
	}
}

func (s *AVSession) writeToEncoder(chunk []byte) error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return encoder.ErrNotRunning
	}
	return proc.Write(chunk)
}

// Stop cancels the watchdogs, drops any queued-but-undispatched chunks,
// stops the encoder, and transitions to Closed once it has exited.
// Idempotent: calling Stop more than once is a no-op after the first.
func (s *AVSession) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.state != Failed {
			s.state = Stopping
		}
		watchdogCancel := s.watchdogCancel
		procCancel := s.procCancel
		fq := s.fq
		proc := s.proc
		sink := s.sink
		sampler := s.sampler
		s.mu.Unlock()

		if watchdogCancel != nil {
			watchdogCancel()
		}
		if fq != nil {
			fq.Clear()
			fq.Stop()
		}
		if sampler != nil {
			sampler.Stop()
		}
		if proc != nil {
			_ = proc.Stop()
		}
		if procCancel != nil {
			procCancel()
		}
		if sink != nil {
			if err := sink.Close(); err != nil {
				log.Warn("destination sink close failed", "err", err)
			}
		}

		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()

		if s.events.OnClosed != nil {
			s.events.OnClosed()
		}
	})
}

func (s *AVSession) handleEncoderReady() {
	s.readyOnce.Do(func() {
		s.mu.Lock()
		if s.state == Starting {
			s.state = Running
		}
		processor := s.processor
		spawnedAt := s.spawnedAt
		s.mu.Unlock()

		if !spawnedAt.IsZero() {
			obsv.EncoderReadyLatency(context.Background(), processor, time.Since(spawnedAt).Seconds())
		}
		if s.events.OnReady != nil {
			s.events.OnReady()
		}
	})
}

func (s *AVSession) handleEncoderStats(stats encoder.Stats) {
	stats.ProcessCPUPercent = math.Float64frombits(s.lastProcessCPUPercent.Load())
	stats.ProcessRSSBytes = s.lastProcessRSSBytes.Load()
	if s.events.OnStats != nil {
		s.events.OnStats(stats)
	}
}

func (s *AVSession) handleEncoderError(err error) {
	s.mu.Lock()
	wasRunning := s.state == Running || s.state == Starting
	if wasRunning {
		s.state = Failed
	}
	s.mu.Unlock()

	if wasRunning {
		s.emitError(ErrorKindRuntime, err)
		go s.Stop()
	}
}

func (s *AVSession) emitError(kind ErrorKind, err error) {
	log.Warn("avsession error", "kind", kind, "error", err)
	if s.events.OnError != nil {
		s.events.OnError(kind, err)
	}
}

// runChunkWatchdog is the sole liveness check for an AVSession: each
// tick compares the time since the last chunk arrival to
// ChunkWaitTimeout. On expiry it transitions to Stopping, emits
// OnTimeout, and stops the session; the owning ClientSession is
// responsible for sending header 0x36 to the peer from OnTimeout.
func (s *AVSession) runChunkWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ChunkWaitCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastChunkTime.Load())
			if time.Since(last) >= s.cfg.ChunkWaitTimeout {
				s.mu.Lock()
				s.state = Stopping
				s.mu.Unlock()

				if s.events.OnTimeout != nil {
					s.events.OnTimeout()
				}
				go s.Stop()
				return
			}
		}
	}
}
