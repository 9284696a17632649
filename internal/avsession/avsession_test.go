package avsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lanternops/avgateway/internal/encoder"
)

// fakeEncoder is a hand-written double implementing encoder.EncoderProcess.
type fakeEncoder struct {
	mu          sync.Mutex
	running     bool
	written     [][]byte
	startErr    error
	failOnStart bool
	cb          encoder.Callbacks
}

func newFakeEncoderFactory(shared *fakeEncoder) encoder.Factory {
	return func(cfg encoder.StreamConfig, cb encoder.Callbacks) encoder.EncoderProcess {
		shared.cb = cb
		return shared
	}
}

func (f *fakeEncoder) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *fakeEncoder) Write(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return encoder.ErrNotRunning
	}
	f.written = append(f.written, chunk)
	return nil
}

func (f *fakeEncoder) Stop() error {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *fakeEncoder) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEncoder) triggerReady() { f.cb.OnReady() }

func TestAVSessionStartTransitionsToRunningOnReady(t *testing.T) {
	fake := &fakeEncoder{}
	encoder.Register("test-fake", newFakeEncoderFactory(fake))

	var readyFired bool
	sess := New(Config{QueueCapacity: 8}, Events{
		OnReady: func() { readyFired = true },
	})

	err := sess.Start(context.Background(), encoder.StreamConfig{Processor: "test-fake"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.State() != Starting {
		t.Fatalf("expected state Starting immediately after Start, got %s", sess.State())
	}

	fake.triggerReady()
	if sess.State() != Running {
		t.Fatalf("expected state Running after encoder ready, got %s", sess.State())
	}
	if !readyFired {
		t.Fatal("expected OnReady callback to fire")
	}

	sess.Stop()
	if sess.State() != Closed {
		t.Fatalf("expected state Closed after Stop, got %s", sess.State())
	}
}

func TestAVSessionPutDeliversChunksInOrder(t *testing.T) {
	fake := &fakeEncoder{}
	encoder.Register("test-fake-order", newFakeEncoderFactory(fake))

	sess := New(Config{QueueCapacity: 8}, Events{})
	if err := sess.Start(context.Background(), encoder.StreamConfig{
		Processor: "test-fake-order",
		Encoder:   encoder.EncoderSpec{Video: encoder.VideoSpec{FPS: 1000}},
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fake.triggerReady()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		sess.Put(ctx, []byte{byte(i)})
	}

	deadline := time.After(2 * time.Second)
	for {
		fake.mu.Lock()
		n := len(fake.written)
		fake.mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for chunks, got %d/3", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	fake.mu.Lock()
	for i, chunk := range fake.written {
		if chunk[0] != byte(i) {
			t.Fatalf("expected in-order delivery, got %v at index %d", fake.written, i)
		}
	}
	fake.mu.Unlock()

	sess.Stop()
}

func TestAVSessionUnknownProcessorFailsStart(t *testing.T) {
	sess := New(Config{}, Events{})
	err := sess.Start(context.Background(), encoder.StreamConfig{Processor: "does-not-exist"})
	if err == nil {
		t.Fatal("expected Start to fail for an unregistered processor")
	}
	if sess.State() != Failed {
		t.Fatalf("expected state Failed, got %s", sess.State())
	}
}

func TestAVSessionChunkWatchdogTimesOut(t *testing.T) {
	fake := &fakeEncoder{}
	encoder.Register("test-fake-watchdog", newFakeEncoderFactory(fake))

	timedOut := make(chan struct{})
	sess := New(Config{
		ChunkWaitTimeout:       30 * time.Millisecond,
		ChunkWaitCheckInterval: 5 * time.Millisecond,
	}, Events{
		OnTimeout: func() { close(timedOut) },
	})

	if err := sess.Start(context.Background(), encoder.StreamConfig{Processor: "test-fake-watchdog"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fake.triggerReady()

	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("expected chunk watchdog to fire OnTimeout")
	}

	deadline := time.After(2 * time.Second)
	for sess.State() != Closed {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for session to close, state=%s", sess.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAVSessionEncoderRuntimeErrorEntersFailed(t *testing.T) {
	fake := &fakeEncoder{}
	encoder.Register("test-fake-runtime-err", newFakeEncoderFactory(fake))

	var gotKind ErrorKind
	errored := make(chan struct{})
	sess := New(Config{}, Events{
		OnError: func(kind ErrorKind, detail error) {
			gotKind = kind
			close(errored)
		},
	})

	if err := sess.Start(context.Background(), encoder.StreamConfig{Processor: "test-fake-runtime-err"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fake.triggerReady()

	fake.cb.OnError(encoder.ErrNotRunning)

	select {
	case <-errored:
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnError callback to fire")
	}
	if gotKind != ErrorKindRuntime {
		t.Fatalf("expected ErrorKindRuntime, got %v", gotKind)
	}
	// The error sets Failed before OnError fires; the Stop that follows
	// may already have moved the session on to Closed.
	if st := sess.State(); st != Failed && st != Closed {
		t.Fatalf("expected state Failed (or Closed after the follow-up Stop), got %s", st)
	}
}
