package storage

import (
	"context"

	"github.com/emmystark/dwello/internal/models"
)

// UploadResult describes a blob accepted by the store. BlobID is always
// store-assigned, never client-assigned.
type UploadResult struct {
	BlobID string `json:"blobId"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
}

// Object is a blob fetched back from the store.
type Object struct {
	Data        []byte
	ContentType string
	Size        int64
}

// BlobStore moves bytes to and from the external blob store.
// Upload is the only mutating operation and is not idempotent. Validate is a
// lightweight existence probe and never returns an error; failures are carried
// in the BlobStatus value.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, filename, contentType string) (*UploadResult, error)
	Validate(ctx context.Context, blobID string) models.BlobStatus
	Retrieve(ctx context.Context, blobID string) (*Object, error)
}
