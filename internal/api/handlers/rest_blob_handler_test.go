package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/emmystark/dwello/internal/api/handlers"
	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/storage"
)

func newBlobRouter(blobStore *MockBlobStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewRestBlobHandler(testConfig(), blobStore)
	r := gin.New()
	r.POST("/walrus/upload", h.Upload)
	r.GET("/walrus/file/:blobId", h.GetFile)
	r.GET("/walrus/verify/:blobId", h.Verify)
	r.POST("/walrus/verify-bulk", h.VerifyBulk)
	return r
}

// multipartFile builds a multipart body with one "file" part of the given
// content type.
func multipartFile(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	assert.NoError(t, err)
	_, err = part.Write(data)
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestRestBlobHandler_Upload_Success(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	data := []byte("fake jpeg bytes")
	blobStore.On("Upload", mock.Anything, data, "house.jpg", "image/jpeg").Return(&storage.UploadResult{
		BlobID: "blob-abc",
		URL:    "https://agg.example/v1/blobs/blob-abc",
		Size:   int64(len(data)),
	}, nil)

	body, contentType := multipartFile(t, "house.jpg", "image/jpeg", data)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/walrus/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "blob-abc", respBody["blobId"])
	blobStore.AssertExpectations(t)
}

func TestRestBlobHandler_Upload_UnsupportedType(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	body, contentType := multipartFile(t, "malware.exe", "application/octet-stream", []byte("nope"))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/walrus/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	blobStore.AssertNotCalled(t, "Upload")
}

func TestRestBlobHandler_Upload_MissingFile(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/walrus/upload", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	blobStore.AssertNotCalled(t, "Upload")
}

func TestRestBlobHandler_GetFile_Success(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	blobStore.On("Retrieve", mock.Anything, "blob-abc").Return(&storage.Object{
		Data:        []byte("image bytes"),
		ContentType: "image/png",
		Size:        11,
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/walrus/file/blob-abc", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "image bytes", w.Body.String())
	blobStore.AssertExpectations(t)
}

func TestRestBlobHandler_GetFile_NotFound(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	blobStore.On("Retrieve", mock.Anything, "gone").Return(nil, &models.RetrievalError{
		BlobID: "gone",
		Msg:    "blob not found",
		Err:    models.ErrNotFound,
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/walrus/file/gone", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	blobStore.AssertExpectations(t)
}

func TestRestBlobHandler_Verify(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	blobStore.On("Validate", mock.Anything, "blob-abc").Return(models.BlobStatus{
		BlobID: "blob-abc",
		Valid:  true,
		Status: http.StatusOK,
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/walrus/verify/blob-abc", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, true, respBody["valid"])
	blobStore.AssertExpectations(t)
}

func TestRestBlobHandler_VerifyBulk(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	blobStore.On("Validate", mock.Anything, "a").Return(models.BlobStatus{BlobID: "a", Valid: true, Status: http.StatusOK})
	blobStore.On("Validate", mock.Anything, "b").Return(models.BlobStatus{BlobID: "b", Valid: false, Status: http.StatusNotFound})

	payload, _ := json.Marshal(map[string]interface{}{"blobIds": []string{"a", "b"}})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/walrus/verify-bulk", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	results, ok := respBody["results"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, results, 2)
	blobStore.AssertExpectations(t)
}

func TestRestBlobHandler_VerifyBulk_Empty(t *testing.T) {
	blobStore := new(MockBlobStore)
	r := newBlobRouter(blobStore)

	payload, _ := json.Marshal(map[string]interface{}{"blobIds": []string{}})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/walrus/verify-bulk", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	blobStore.AssertNotCalled(t, "Validate")
}
