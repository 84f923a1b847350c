package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/models"
)

func walrusTestConfig(publisherURL, aggregatorURL string) *config.Config {
	return &config.Config{
		WalrusPublisherURL:  publisherURL,
		WalrusAggregatorURL: aggregatorURL,
		WalrusEpochs:        5,
		BlobIDFields: []string{
			"newlyCreated.blobObject.blobId",
			"alreadyCertified.blobId",
			"blobId",
			"id",
			"cid",
			"hash",
		},
	}
}

func TestWalrusStorage_Upload_NewlyCreated(t *testing.T) {
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/blobs", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("epochs"))
		w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"fresh-blob","size":1234}}}`))
	}))
	defer publisher.Close()

	store := NewWalrusStorage(walrusTestConfig(publisher.URL, "http://aggregator.example"))

	result, err := store.Upload(context.Background(), []byte("payload"), "photo.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "fresh-blob", result.BlobID)
	assert.Equal(t, "http://aggregator.example/v1/blobs/fresh-blob", result.URL)
	assert.EqualValues(t, 7, result.Size)
}

func TestWalrusStorage_Upload_AlreadyCertified(t *testing.T) {
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"alreadyCertified":{"blobId":"seen-before","endEpoch":900}}`))
	}))
	defer publisher.Close()

	store := NewWalrusStorage(walrusTestConfig(publisher.URL, "http://aggregator.example"))

	result, err := store.Upload(context.Background(), []byte("payload"), "photo.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "seen-before", result.BlobID)
}

func TestWalrusStorage_Upload_ProbeOrder(t *testing.T) {
	// Both shapes present: the earlier configured path wins.
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"primary"}},"blobId":"flat-fallback"}`))
	}))
	defer publisher.Close()

	store := NewWalrusStorage(walrusTestConfig(publisher.URL, "http://aggregator.example"))

	result, err := store.Upload(context.Background(), []byte("x"), "a.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "primary", result.BlobID)
}

func TestWalrusStorage_Upload_FlatFallbacks(t *testing.T) {
	for _, field := range []string{"blobId", "id", "cid", "hash"} {
		t.Run(field, func(t *testing.T) {
			publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"` + field + `":"via-` + field + `"}`))
			}))
			defer publisher.Close()

			store := NewWalrusStorage(walrusTestConfig(publisher.URL, "http://aggregator.example"))
			result, err := store.Upload(context.Background(), []byte("x"), "a.png", "image/png")
			require.NoError(t, err)
			assert.Equal(t, "via-"+field, result.BlobID)
		})
	}
}

func TestWalrusStorage_Upload_NoRecognizableID(t *testing.T) {
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"something":"else"}`))
	}))
	defer publisher.Close()

	store := NewWalrusStorage(walrusTestConfig(publisher.URL, "http://aggregator.example"))

	result, err := store.Upload(context.Background(), []byte("x"), "a.png", "image/png")
	assert.Nil(t, result)
	var uploadErr *models.UploadError
	assert.True(t, errors.As(err, &uploadErr))
}

func TestWalrusStorage_Upload_PublisherError(t *testing.T) {
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "store full", http.StatusInsufficientStorage)
	}))
	defer publisher.Close()

	store := NewWalrusStorage(walrusTestConfig(publisher.URL, "http://aggregator.example"))

	result, err := store.Upload(context.Background(), []byte("x"), "a.png", "image/png")
	assert.Nil(t, result)
	var uploadErr *models.UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Equal(t, http.StatusInsufficientStorage, uploadErr.Status)
}

func TestWalrusStorage_Validate(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/v1/blobs/known" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer aggregator.Close()

	store := NewWalrusStorage(walrusTestConfig("http://publisher.example", aggregator.URL))

	status := store.Validate(context.Background(), "known")
	assert.True(t, status.Valid)
	assert.Equal(t, http.StatusOK, status.Status)
	assert.Equal(t, aggregator.URL+"/v1/blobs/known", status.URL)

	status = store.Validate(context.Background(), "unknown")
	assert.False(t, status.Valid)
	assert.Equal(t, http.StatusNotFound, status.Status)
}

func TestWalrusStorage_Validate_AggregatorDown(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	aggregator.Close() // unreachable on purpose

	store := NewWalrusStorage(walrusTestConfig("http://publisher.example", aggregator.URL))

	status := store.Validate(context.Background(), "whatever")
	assert.False(t, status.Valid)
	assert.NotEmpty(t, status.Error)
}

func TestWalrusStorage_Retrieve(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/blobs/known" {
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png bytes"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer aggregator.Close()

	store := NewWalrusStorage(walrusTestConfig("http://publisher.example", aggregator.URL))

	object, err := store.Retrieve(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), object.Data)
	assert.Equal(t, "image/png", object.ContentType)
	assert.EqualValues(t, 9, object.Size)

	_, err = store.Retrieve(context.Background(), "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	var retrievalErr *models.RetrievalError
	assert.True(t, errors.As(err, &retrievalErr))
}
