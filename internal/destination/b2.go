package destination

import (
	"context"
	"fmt"

	"github.com/Backblaze/blazer/b2"

	"github.com/lanternops/avgateway/internal/config"
)

// b2Sink streams the encoder's stdout to a Backblaze B2 bucket. Like
// GCS, blazer's Writer is itself an io.Writer that finalizes on Close.
type b2Sink struct {
	w *b2.Writer
}

func newB2Sink(ctx context.Context, cfg *config.Config, key string) (Sink, error) {
	if cfg.B2Bucket == "" {
		return nil, fmt.Errorf("destination: b2 bucket not configured")
	}

	client, err := b2.NewClient(ctx, cfg.B2AccountID, cfg.B2AppKey)
	if err != nil {
		return nil, fmt.Errorf("destination: b2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, cfg.B2Bucket)
	if err != nil {
		return nil, fmt.Errorf("destination: b2 bucket %q: %w", cfg.B2Bucket, err)
	}

	w := bucket.Object(key).NewWriter(ctx)
	return &b2Sink{w: w}, nil
}

func (s *b2Sink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *b2Sink) Close() error                { return s.w.Close() }
