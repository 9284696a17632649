package destination

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/lanternops/avgateway/internal/config"
)

// azblobSink streams the encoder's stdout to Azure Blob Storage via
// UploadStream, which (like the S3 manager) takes an io.Reader, so the
// push-style Write calls are bridged through an io.Pipe.
type azblobSink struct {
	pw     *io.PipeWriter
	result chan error
}

func newAzblobSink(ctx context.Context, cfg *config.Config, key string) (Sink, error) {
	if cfg.AzureBlobURL == "" {
		return nil, fmt.Errorf("destination: azure blob container URL not configured")
	}

	client, err := azblob.NewClientWithNoCredential(cfg.AzureBlobURL, nil)
	if err != nil {
		return nil, fmt.Errorf("destination: azblob client: %w", err)
	}

	pr, pw := io.Pipe()
	result := make(chan error, 1)

	container := cfg.AzureContainer
	if container == "" {
		container = "avgateway"
	}

	go func() {
		_, err := client.UploadStream(ctx, container, key, pr, nil)
		result <- err
		_ = pr.CloseWithError(err)
	}()

	return &azblobSink{pw: pw, result: result}, nil
}

func (s *azblobSink) Write(p []byte) (int, error) { return s.pw.Write(p) }

func (s *azblobSink) Close() error {
	if err := s.pw.Close(); err != nil {
		return err
	}
	return <-s.result
}
