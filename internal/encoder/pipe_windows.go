//go:build windows

package encoder

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"

	"github.com/Microsoft/go-winio"
)

var pipeSeq atomic.Int64

// newNamedPipe creates a Windows named pipe at \\.\pipe\prefix-<pid>-<unique>.
// gst-launch's filesrc accepts a named pipe path directly on Windows.
func newNamedPipe(prefix string) (namedPipe, error) {
	path := fmt.Sprintf(`\\.\pipe\%s-%d-%d`, prefix, os.Getpid(), pipeSeq.Add(1))
	l, err := winio.ListenPipe(path, nil)
	if err != nil {
		return nil, fmt.Errorf("encoder: listen pipe %s: %w", path, err)
	}
	return &winioPipe{path: path, listener: l}, nil
}

type winioPipe struct {
	path     string
	listener net.Listener
}

func (p *winioPipe) Path() string { return p.path }

// OpenWriter blocks until the child process connects to the pipe as a
// client (filesrc opening it for read), then returns the server-side
// connection as the write end.
func (p *winioPipe) OpenWriter(ctx context.Context) (io.WriteCloser, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := p.listener.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *winioPipe) Close() error {
	return p.listener.Close()
}
