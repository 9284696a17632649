// Package encoder drives an external encoder subprocess (an FFmpeg- or
// GStreamer-compatible tool) behind a single EncoderProcess interface.
// Two concrete adapters implement it; argument synthesis and stderr
// parsing are kept as pure functions per adapter rather than shared
// through a common base type.
package encoder

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors returned by Start/Write; ErrReadyTimeout is instead
// reported through Callbacks.OnError.
var (
	ErrAlreadyRunning = errors.New("encoder: already running")
	ErrBinaryMissing  = errors.New("encoder: binary not found on PATH")
	ErrSpawnFailed    = errors.New("encoder: failed to spawn child process")
	ErrNotRunning     = errors.New("encoder: process is not running")
	ErrReadyTimeout   = errors.New("encoder: no readiness marker within deadline")
)

// ReadyTimeout bounds how long an adapter waits, after Start has
// returned, for the adapter-specific readiness marker to appear on
// stderr before reporting ErrReadyTimeout through Callbacks.OnError.
const ReadyTimeout = 10 * time.Second

// StopGraceTimeout bounds how long Stop waits for the child to exit after
// end-of-input before escalating to an interrupt signal.
const StopGraceTimeout = 10 * time.Second

// Stats is the structured record extracted from a child's progress
// output. Not every field applies to every adapter; zero value means
// "not reported by this adapter's stderr format".
type Stats struct {
	Frame            int64   `json:"frame,omitempty"`
	FPS              float64 `json:"fps,omitempty"`
	SizeKB           int64   `json:"sizeKB,omitempty"`
	TimeMs           int64   `json:"timeMs,omitempty"`
	BitrateKbps      float64 `json:"bitrateKbps,omitempty"`
	Speed            float64 `json:"speed,omitempty"`
	InFrames         int64   `json:"inFrames,omitempty"`
	OutFrames        int64   `json:"outFrames,omitempty"`
	DroppedFrames    int64   `json:"droppedFrames,omitempty"`
	DuplicatedFrames int64   `json:"duplicatedFrames,omitempty"`
	TimestampSec     int64   `json:"timestamp,omitempty"`

	// ProcessCPUPercent and ProcessRSSBytes extend the stderr-derived
	// fields above with a gopsutil sample of the encoder child's own
	// resource usage, folded in by AVSession rather than parsed from
	// either adapter's stderr format. Zero when no sample has landed
	// yet (e.g. the very first stats event after readiness).
	ProcessCPUPercent float64 `json:"processCPUPercent,omitempty"`
	ProcessRSSBytes   uint64  `json:"processRSSBytes,omitempty"`
}

// PIDProvider is implemented by adapters that can report the live child
// PID, letting AVSession attach a procstats.Sampler without either
// adapter importing that package itself.
type PIDProvider interface {
	PID() (pid int32, ok bool)
}

// Callbacks are the event hooks supplied at construction. Each is
// optional; a nil callback is simply not invoked.
type Callbacks struct {
	OnReady func()
	OnStats func(Stats)
	OnError func(error)

	// Stdout, if non-nil, is wired as the child's standard output; if
	// nil, os/exec connects the child's stdout to the null device and
	// its output is discarded. It is used only when
	// StreamConfig.Destination.Type selects the raw-pipe sentinel or
	// one of the cloud destinations (the destination package decides
	// which and supplies the writer); every other destination type
	// writes straight to a file or network URL via the synthesized
	// command-line argument and never touches Stdout.
	Stdout io.Writer
}

// EncoderProcess is the scoped lifecycle over a child process: start,
// feed stdin, and stop, with readiness/stats/error reported through the
// Callbacks supplied at construction.
type EncoderProcess interface {
	// Start spawns the child. It returns once the process is live,
	// which is not the same as ready; callers must wait for OnReady.
	Start(ctx context.Context) error

	// Write feeds one chunk to the child's stdin. It blocks under
	// stdin backpressure and returns ErrNotRunning if the child has
	// already exited.
	Write(chunk []byte) error

	// Stop initiates cooperative shutdown and blocks until the child
	// has exited.
	Stop() error

	// IsRunning reports whether the child process is currently alive.
	IsRunning() bool
}

// Factory constructs a new EncoderProcess for the given StreamConfig and
// Callbacks. Each adapter registers itself under its processor name via
// Register.
type Factory func(cfg StreamConfig, cb Callbacks) EncoderProcess

var factories = map[string]Factory{}

// Register associates a processor name (as named in StreamConfig.Processor)
// with a constructor. Adapter packages call this from an init function.
func Register(processor string, factory Factory) {
	factories[processor] = factory
}

// New constructs the EncoderProcess named by cfg.Processor, defaulting to
// "ffmpeg" when unset. Returns false if no adapter is registered under
// that name.
func New(cfg StreamConfig, cb Callbacks) (EncoderProcess, bool) {
	name := cfg.Processor
	if name == "" {
		name = "ffmpeg"
	}
	factory, ok := factories[name]
	if !ok {
		return nil, false
	}
	return factory(cfg, cb), true
}
