package destination

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lanternops/avgateway/internal/config"
)

// s3Sink streams the encoder's stdout into an S3 multipart upload via
// s3manager.Uploader, bridging the push-style Write calls through an
// io.Pipe since the SDK's Upload call wants a Reader.
type s3Sink struct {
	pw     *io.PipeWriter
	result chan error
}

func newS3Sink(ctx context.Context, cfg *config.Config, key string) (Sink, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("destination: s3 bucket not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("destination: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client)

	pr, pw := io.Pipe()
	result := make(chan error, 1)

	go func() {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(cfg.S3Bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		result <- err
		_ = pr.CloseWithError(err)
	}()

	return &s3Sink{pw: pw, result: result}, nil
}

func (s *s3Sink) Write(p []byte) (int, error) { return s.pw.Write(p) }

func (s *s3Sink) Close() error {
	if err := s.pw.Close(); err != nil {
		return err
	}
	return <-s.result
}
