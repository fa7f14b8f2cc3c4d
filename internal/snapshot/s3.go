package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"rmt-go/internal/rmt"
)

// S3Sink writes snapshots to an S3 bucket under a key prefix. Credentials
// come from the standard AWS credential chain.
type S3Sink struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	enc      rmt.Encryptor
}

var _ rmt.SnapshotSink = (*S3Sink)(nil)

// NewS3Sink creates a sink writing to bucket under prefix in region. enc
// may be nil for plaintext snapshots.
func NewS3Sink(ctx context.Context, bucket, prefix, region string, enc rmt.Encryptor) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 sink requires a bucket")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Sink{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		enc:      enc,
	}, nil
}

// WriteSnapshot encodes records and uploads them to
// s3://<bucket>/<prefix>/<name>.
func (s *S3Sink) WriteSnapshot(name string, records []rmt.Record) error {
	data, name, err := encodeSnapshot(name, records, s.enc)
	if err != nil {
		return err
	}

	key := path.Join(s.prefix, name)
	_, err = s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
