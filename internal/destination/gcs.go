package destination

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/lanternops/avgateway/internal/config"
)

// gcsSink streams the encoder's stdout to Google Cloud Storage. Unlike
// S3/Azure, storage.Writer is itself an io.Writer that uploads on
// Close, so no io.Pipe bridge is needed here.
type gcsSink struct {
	w *storage.Writer
}

func newGCSSink(ctx context.Context, cfg *config.Config, key string) (Sink, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("destination: gcs bucket not configured")
	}

	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("destination: gcs client: %w", err)
	}

	w := client.Bucket(cfg.GCSBucket).Object(key).NewWriter(ctx)
	return &gcsSink{w: w}, nil
}

func (s *gcsSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *gcsSink) Close() error                { return s.w.Close() }
