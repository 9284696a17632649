//go:build !windows

package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
)

type fifoPipe struct {
	path string
}

var pipeSeq atomic.Int64

// newNamedPipe creates a FIFO under os.TempDir named prefix-<pid>-<unique>.
// It is unlinked on Close.
func newNamedPipe(prefix string) (namedPipe, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d-%d.fifo", prefix, os.Getpid(), pipeSeq.Add(1)))
	if err := syscall.Mkfifo(path, 0600); err != nil {
		return nil, fmt.Errorf("encoder: mkfifo %s: %w", path, err)
	}
	return &fifoPipe{path: path}, nil
}

func (f *fifoPipe) Path() string { return f.path }

// OpenWriter opens the FIFO for writing. This blocks until a reader
// (the child's filesrc) has opened the other end, so it is only called
// after the child process has started.
func (f *fifoPipe) OpenWriter(ctx context.Context) (io.WriteCloser, error) {
	type result struct {
		w   *os.File
		err error
	}
	ch := make(chan result, 1)
	go func() {
		w, err := os.OpenFile(f.path, os.O_WRONLY, 0600)
		ch <- result{w, err}
	}()

	select {
	case r := <-ch:
		return r.w, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fifoPipe) Close() error {
	return os.Remove(f.path)
}
