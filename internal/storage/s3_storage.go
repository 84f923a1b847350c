package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/models"
)

// s3Storage implements BlobStore on an S3 bucket. Object keys play the role of
// blob IDs: they are generated here, which makes this driver suitable for
// development and self-hosted deployments where no Walrus endpoint is available.
type s3Storage struct {
	cfg      *config.Config
	s3Client *s3.Client
}

// NewS3Storage creates a BlobStore backed by S3.
func NewS3Storage(cfg *config.Config) (BlobStore, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		// Static credentials from config for simplicity; prefer IAM roles in production.
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3Storage{
		cfg:      cfg,
		s3Client: s3.NewFromConfig(awsCfg),
	}, nil
}

func (s *s3Storage) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.AwsS3Bucket, s.cfg.AwsRegion, key)
}

// Upload stores the bytes under a fresh uuid-prefixed key.
func (s *s3Storage) Upload(ctx context.Context, data []byte, filename, contentType string) (*UploadResult, error) {
	objectKey := fmt.Sprintf("blobs/%s_%s", uuid.NewString(), filename)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, &models.UploadError{Msg: fmt.Sprintf("failed to put object %s", objectKey), Err: err}
	}

	return &UploadResult{
		BlobID: objectKey,
		URL:    s.objectURL(objectKey),
		Size:   int64(len(data)),
	}, nil
}

// Validate probes the bucket with HeadObject. Never returns an error.
func (s *s3Storage) Validate(ctx context.Context, blobID string) models.BlobStatus {
	status := models.BlobStatus{BlobID: blobID}

	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(blobID),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			status.Status = 404
		} else {
			status.Error = err.Error()
		}
		return status
	}

	status.Valid = true
	status.Status = 200
	status.URL = s.objectURL(blobID)
	return status
}

// Retrieve fetches the object bytes.
func (s *s3Storage) Retrieve(ctx context.Context, blobID string) (*Object, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(blobID),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, &models.RetrievalError{BlobID: blobID, Msg: "blob not found", Err: models.ErrNotFound}
		}
		return nil, &models.RetrievalError{BlobID: blobID, Msg: "failed to get object", Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &models.RetrievalError{BlobID: blobID, Msg: "failed to read object body", Err: err}
	}

	contentType := "application/octet-stream"
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}

	return &Object{
		Data:        data,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}
