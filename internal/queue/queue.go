// Package queue implements the bounded, paced frame queue that feeds an
// encoder's stdin from the packet-routing path: a capped buffer that
// drops the oldest entry on overflow, with dispatch pacing provided by
// golang.org/x/time/rate.
package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lanternops/avgateway/internal/logging"
	"github.com/lanternops/avgateway/internal/obsv"
)

var log = logging.L("queue")

// DefaultCapacity is the recommended cap on queued chunks; beyond this
// the oldest chunk is dropped to bound memory growth under a stuck
// encoder.
const DefaultCapacity = 256

// Sink is whatever consumes dispatched chunks; an AVSession's encoder
// write path implements it.
type Sink func(chunk []byte) error

// FrameQueue is an ordered sequence of opaque byte buffers, paced so
// that no two dispatches to Sink happen closer together than
// frameInterval. A late-arriving chunk (the elapsed time since the
// previous dispatch already exceeds frameInterval) is dispatched
// immediately rather than held for the full interval again.
type FrameQueue struct {
	mu       sync.Mutex
	buf      [][]byte
	capacity int

	limiter *rate.Limiter
	sink    Sink
	notify  chan struct{}

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a FrameQueue capped at capacity (DefaultCapacity if
// <= 0) pacing dispatches to sink at frameIntervalMs milliseconds apart.
func New(capacity int, frameIntervalMs int, sink Sink) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if frameIntervalMs <= 0 {
		frameIntervalMs = 33
	}
	every := time.Duration(frameIntervalMs) * time.Millisecond
	return &FrameQueue{
		capacity: capacity,
		limiter:  rate.NewLimiter(rate.Every(every), 1),
		sink:     sink,
		notify:   make(chan struct{}, 1),
	}
}

// Put enqueues a chunk, dropping the oldest entry and logging a
// backpressure warning if the queue is already at capacity. It starts
// the pacing worker the first time it is called.
func (q *FrameQueue) Put(ctx context.Context, chunk []byte) {
	q.mu.Lock()
	if len(q.buf) >= q.capacity {
		q.buf = q.buf[1:]
		log.Warn("frame queue backpressure, dropping oldest chunk", "capacity", q.capacity)
		obsv.ChunkDropped(ctx)
	}
	q.buf = append(q.buf, chunk)
	if !q.started {
		q.started = true
		workerCtx, cancel := context.WithCancel(ctx)
		q.cancel = cancel
		q.done = make(chan struct{})
		go q.run(workerCtx)
	}
	q.mu.Unlock()
	obsv.ChunkQueued(ctx)

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *FrameQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		chunk, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		if err := q.limiter.Wait(ctx); err != nil {
			return
		}

		if err := q.sink(chunk); err != nil {
			log.Warn("frame queue sink write failed", "error", err)
		}
	}
}

func (q *FrameQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil, false
	}
	chunk := q.buf[0]
	q.buf = q.buf[1:]
	return chunk, true
}

// Clear drops all queued chunks without dispatching them, used when an
// AVSession stops.
func (q *FrameQueue) Clear() {
	q.mu.Lock()
	q.buf = nil
	q.mu.Unlock()
}

// Stop cancels the pacing worker and waits for it to exit. Safe to call
// even if Put was never called (the worker never started), and safe to
// call concurrently with Put.
func (q *FrameQueue) Stop() {
	q.mu.Lock()
	// A Put arriving after Stop must not spawn a worker nothing will stop.
	q.started = true
	cancel := q.cancel
	done := q.done
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Len reports the number of chunks currently queued, for tests and
// stats reporting.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
