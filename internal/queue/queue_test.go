package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFrameQueueDispatchesInOrder(t *testing.T) {
	var mu sync.Mutex
	var received [][]byte

	q := New(DefaultCapacity, 1, func(chunk []byte) error {
		mu.Lock()
		received = append(received, chunk)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		q.Put(ctx, []byte{byte(i)})
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dispatch, got %d/5", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, chunk := range received {
		if chunk[0] != byte(i) {
			t.Fatalf("expected in-order dispatch, got %v at index %d", chunk, i)
		}
	}
}

func TestFrameQueueDropsOldestOnOverflow(t *testing.T) {
	block := make(chan struct{})
	q := New(2, 1, func(chunk []byte) error {
		<-block // never returns until test closes it, so the worker stalls
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Put(ctx, []byte{1}) // picked up by the worker immediately, queue now empty
	time.Sleep(20 * time.Millisecond)
	q.Put(ctx, []byte{2})
	q.Put(ctx, []byte{3})
	q.Put(ctx, []byte{4}) // overflows capacity 2, drops chunk {2}

	if got := q.Len(); got != 2 {
		t.Fatalf("expected queue length capped at 2, got %d", got)
	}

	close(block)
	q.Stop()
}

func TestFrameQueueClear(t *testing.T) {
	q := New(DefaultCapacity, 1000, func(chunk []byte) error { return nil })
	ctx := context.Background()
	q.Put(ctx, []byte{1})
	q.Put(ctx, []byte{2})
	q.Clear()
	if got := q.Len(); got != 0 {
		t.Fatalf("expected queue cleared, got length %d", got)
	}
}
