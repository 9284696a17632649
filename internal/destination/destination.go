// Package destination implements the Sink abstraction that receives the
// encoder child's stdout bytes whenever StreamConfig.Destination.Type
// selects the raw-pipe default or one of the additive cloud object
// storage destinations. The file and rtmp destination values are handled
// entirely by the encoder's own argument synthesis and never go through a
// Sink; the null (raw pipe) value goes through stdoutSink.
package destination

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/lanternops/avgateway/internal/config"
)

// Sink is a destination for the encoder's raw stdout byte stream.
type Sink interface {
	io.Writer
	Close() error
}

// Resolve returns the Sink to wire as encoder.Callbacks.Stdout for the
// given destination type, or (nil, false) if the destination writes
// directly via a command-line argument (file, rtmp) and needs no Sink.
func Resolve(ctx context.Context, cfg *config.Config, destType, key string) (Sink, bool, error) {
	switch destType {
	case "", "pipe":
		return &stdoutSink{}, true, nil
	case "s3":
		s, err := newS3Sink(ctx, cfg, key)
		return s, true, err
	case "azblob":
		s, err := newAzblobSink(ctx, cfg, key)
		return s, true, err
	case "gcs":
		s, err := newGCSSink(ctx, cfg, key)
		return s, true, err
	case "b2":
		s, err := newB2Sink(ctx, cfg, key)
		return s, true, err
	case "file", "rtmp":
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("destination: unknown type %q", destType)
	}
}

// stdoutSink is the "null = raw pipe to stdout" destination: it writes
// straight through to the gateway process's own stdout.
type stdoutSink struct{}

func (s *stdoutSink) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (s *stdoutSink) Close() error                { return nil }
