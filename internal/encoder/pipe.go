package encoder

import (
	"context"
	"io"
)

// namedPipe is a real filesystem path the gstreamer adapter's filesrc
// element reads from, bridging in-process Write calls to a child that
// expects a path rather than an inherited stdin fd.
type namedPipe interface {
	Path() string
	OpenWriter(ctx context.Context) (io.WriteCloser, error)
	Close() error
}
