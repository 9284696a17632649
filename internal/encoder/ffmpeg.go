package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/lanternops/avgateway/internal/logging"
)

var log = logging.L("encoder")

func init() {
	Register("ffmpeg", func(cfg StreamConfig, cb Callbacks) EncoderProcess {
		return NewFFmpegProcess(cfg, cb)
	})
}

// FFmpegProcess drives an ffmpeg-compatible binary: readiness is the
// version banner on the first stderr line, and progress is reparsed from
// every `frame=` progress line.
type FFmpegProcess struct {
	cfg    StreamConfig
	cb     Callbacks
	binary string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool
	ready   bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewFFmpegProcess(cfg StreamConfig, cb Callbacks) *FFmpegProcess {
	return &FFmpegProcess{cfg: cfg, cb: cb, binary: "ffmpeg"}
}

// SetBinary overrides the executable name/path (default "ffmpeg"), set
// from config so test doubles and non-PATH installs both work.
func (p *FFmpegProcess) SetBinary(path string) {
	if path != "" {
		p.binary = path
	}
}

func (p *FFmpegProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}

	if _, err := exec.LookPath(p.binary); err != nil {
		p.mu.Unlock()
		return ErrBinaryMissing
	}

	runCtx, cancel := context.WithCancel(ctx)
	args := buildFFmpegArgs(p.cfg)
	cmd := exec.CommandContext(runCtx, p.binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		p.mu.Unlock()
		return errors.Join(ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		p.mu.Unlock()
		return errors.Join(ErrSpawnFailed, err)
	}

	if p.cb.Stdout != nil {
		cmd.Stdout = p.cb.Stdout
	}

	if err := cmd.Start(); err != nil {
		cancel()
		p.mu.Unlock()
		return errors.Join(ErrSpawnFailed, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.cancel = cancel
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.readStderr(stderr)
	go p.awaitExit()
	go p.watchReadiness()

	return nil
}

func (p *FFmpegProcess) watchReadiness() {
	timer := time.NewTimer(ReadyTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		p.mu.Lock()
		alreadyReady := p.ready
		p.mu.Unlock()
		if !alreadyReady {
			p.reportError(ErrReadyTimeout)
		}
	case <-p.done:
	}
}

func (p *FFmpegProcess) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug("ffmpeg stderr", "line", line)

		if !p.isReady() && isFFmpegReadyMarker(line) {
			p.markReady()
		}
		if stats, ok := parseFFmpegStats(line); ok {
			p.reportStats(stats)
		}
		if isFFmpegErrorMarker(line) {
			p.reportError(errors.New("ffmpeg: " + line))
		}
	}
}

func (p *FFmpegProcess) isReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *FFmpegProcess) markReady() {
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	if p.cb.OnReady != nil {
		p.cb.OnReady()
	}
}

func (p *FFmpegProcess) reportStats(s Stats) {
	if p.cb.OnStats != nil {
		p.cb.OnStats(s)
	}
}

func (p *FFmpegProcess) reportError(err error) {
	if p.cb.OnError != nil {
		p.cb.OnError(err)
	}
}

func (p *FFmpegProcess) awaitExit() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.running = false
	close(p.done)
	p.mu.Unlock()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() != 0 {
			log.Warn("ffmpeg exited non-zero", "code", exitErr.ExitCode())
		}
	} else {
		log.Debug("ffmpeg exited normally")
	}
}

func (p *FFmpegProcess) Write(chunk []byte) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	stdin := p.stdin
	p.mu.Unlock()

	_, err := stdin.Write(chunk)
	if err != nil {
		return errors.Join(ErrNotRunning, err)
	}
	return nil
}

func (p *FFmpegProcess) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stdin := p.stdin
	cmd := p.cmd
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	_ = stdin.Close()

	select {
	case <-done:
		cancel()
		return nil
	case <-time.After(StopGraceTimeout):
	}

	// The child ignored end-of-input; ask it to finalize the container
	// with an interrupt, and only kill if that is ignored too.
	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-done:
	case <-time.After(StopGraceTimeout):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	<-done
	cancel()
	return nil
}

func (p *FFmpegProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// PID reports the live child PID, implementing encoder.PIDProvider so
// AVSession can attach a procstats.Sampler.
func (p *FFmpegProcess) PID() (int32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.cmd.Process == nil {
		return 0, false
	}
	return int32(p.cmd.Process.Pid), true
}

var ffmpegErrorMarkers = []string{
	"error",
	"already exists",
	"unknown encoder",
	"unrecognized option",
	"invalid argument",
}

func isFFmpegErrorMarker(line string) bool {
	lower := bytes.ToLower([]byte(line))
	for _, marker := range ffmpegErrorMarkers {
		if bytes.Contains(lower, []byte(marker)) {
			return true
		}
	}
	return false
}

func isFFmpegReadyMarker(line string) bool {
	return bytes.Contains([]byte(line), []byte("ffmpeg version"))
}
