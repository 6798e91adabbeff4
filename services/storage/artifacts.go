package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// ArtifactStore uploads run exports (trade CSVs, Arrow frames, manifests) to S3.
type ArtifactStore struct {
	bucket   string
	prefix   string
	uploader s3manageriface.UploaderAPI
}

// NewArtifactStore builds an uploader from the default credential chain. A
// non-empty endpoint selects an S3-compatible server with path-style keys.
func NewArtifactStore(region, bucket, endpoint, prefix string) (*ArtifactStore, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &ArtifactStore{bucket: bucket, prefix: prefix, uploader: s3manager.NewUploader(sess)}, nil
}

// Upload stores body under prefix/key and returns its location.
func (s *ArtifactStore) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	full := path.Join(s.prefix, key)
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", full, err)
	}
	return out.Location, nil
}
