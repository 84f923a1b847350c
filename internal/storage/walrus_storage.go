package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/models"
)

// walrusStorage implements BlobStore against a Walrus publisher/aggregator pair.
type walrusStorage struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewWalrusStorage creates a BlobStore backed by the Walrus HTTP API.
func NewWalrusStorage(cfg *config.Config) BlobStore {
	return &walrusStorage{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (w *walrusStorage) blobURL(blobID string) string {
	return fmt.Sprintf("%s/v1/blobs/%s", w.cfg.WalrusAggregatorURL, blobID)
}

// Upload PUTs raw bytes to the publisher and extracts the assigned blob ID from
// the response. The publisher's response shape is not stable across versions, so
// the blob ID is located by probing the configured field paths in order.
func (w *walrusStorage) Upload(ctx context.Context, data []byte, filename, contentType string) (*UploadResult, error) {
	url := fmt.Sprintf("%s/v1/blobs?epochs=%d", w.cfg.WalrusPublisherURL, w.cfg.WalrusEpochs)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return nil, &models.UploadError{Msg: "failed to create publisher request", Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, &models.UploadError{Msg: "failed to contact publisher", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.UploadError{Status: resp.StatusCode, Msg: "failed to read publisher response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Walrus upload of %s returned status %d: %s", filename, resp.StatusCode, string(body))
		return nil, &models.UploadError{Status: resp.StatusCode, Msg: fmt.Sprintf("publisher returned status %d", resp.StatusCode)}
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &models.UploadError{Status: resp.StatusCode, Msg: "failed to parse publisher response", Err: err}
	}

	blobID := probeBlobID(decoded, w.cfg.BlobIDFields)
	if blobID == "" {
		log.Printf("Walrus upload response for %s carried no recognizable blob ID field: %s", filename, string(body))
		return nil, &models.UploadError{Status: resp.StatusCode, Msg: "publisher response contained no recognizable blob ID"}
	}

	return &UploadResult{
		BlobID: blobID,
		URL:    w.blobURL(blobID),
		Size:   int64(len(data)),
	}, nil
}

// Validate probes the aggregator with a HEAD request. It never returns an
// error: network failures yield valid=false with the error captured.
func (w *walrusStorage) Validate(ctx context.Context, blobID string) models.BlobStatus {
	status := models.BlobStatus{BlobID: blobID}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.blobURL(blobID), nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()

	status.Status = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		status.Valid = true
		status.URL = w.blobURL(blobID)
	}
	return status
}

// Retrieve fetches the raw bytes of a blob from the aggregator.
func (w *walrusStorage) Retrieve(ctx context.Context, blobID string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.blobURL(blobID), nil)
	if err != nil {
		return nil, &models.RetrievalError{BlobID: blobID, Msg: "failed to create aggregator request", Err: err}
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, &models.RetrievalError{BlobID: blobID, Msg: "failed to contact aggregator", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &models.RetrievalError{BlobID: blobID, Msg: "blob not found", Err: models.ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.RetrievalError{BlobID: blobID, Msg: fmt.Sprintf("aggregator returned status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.RetrievalError{BlobID: blobID, Msg: "failed to read blob body", Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Object{
		Data:        data,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// probeBlobID walks the decoded response along each dotted field path and
// returns the first non-empty string it finds.
func probeBlobID(decoded map[string]interface{}, paths []string) string {
	for _, path := range paths {
		if id := lookupPath(decoded, path); id != "" {
			return id
		}
	}
	return ""
}

func lookupPath(node map[string]interface{}, path string) string {
	segments := strings.Split(path, ".")
	current := node
	for i, key := range segments {
		value, ok := current[key]
		if !ok {
			return ""
		}
		if i == len(segments)-1 {
			if s, ok := value.(string); ok {
				return s
			}
			return ""
		}
		next, ok := value.(map[string]interface{})
		if !ok {
			return ""
		}
		current = next
	}
	return ""
}
