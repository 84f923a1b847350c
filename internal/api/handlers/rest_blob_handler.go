package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/storage"
)

// allowedUploadTypes lists the media content types accepted for upload.
var allowedUploadTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/webm":      true,
	"video/quicktime": true,
}

// maxBulkVerify caps how many blob IDs one verify-bulk request may carry.
const maxBulkVerify = 100

// checkUploadable rejects files that are too large or of a disallowed type.
func checkUploadable(fileHeader *multipart.FileHeader, maxSizeMB int) error {
	maxBytes := int64(maxSizeMB) * 1024 * 1024
	if fileHeader.Size > maxBytes {
		return models.NewValidationError("file %s exceeds the %dMB limit", fileHeader.Filename, maxSizeMB)
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !allowedUploadTypes[contentType] {
		return models.NewValidationError("unsupported content type %q", contentType)
	}
	return nil
}

// RestBlobHandler exposes the blob store over the REST API.
type RestBlobHandler struct {
	cfg       *config.Config
	blobStore storage.BlobStore
}

// NewRestBlobHandler creates a new RestBlobHandler.
func NewRestBlobHandler(cfg *config.Config, blobStore storage.BlobStore) *RestBlobHandler {
	return &RestBlobHandler{cfg: cfg, blobStore: blobStore}
}

// Upload handles POST /walrus/upload with a single multipart "file" field.
func (h *RestBlobHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if err := checkUploadable(fileHeader, h.cfg.UploadMaxSizeMB); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	result, err := h.blobStore.Upload(c.Request.Context(), data, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"blobId":  result.BlobID,
		"url":     result.URL,
		"size":    result.Size,
	})
}

// GetFile handles GET /walrus/file/:blobId, streaming the stored bytes back.
func (h *RestBlobHandler) GetFile(c *gin.Context) {
	blobID := c.Param("blobId")
	if blobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blobId is required"})
		return
	}

	object, err := h.blobStore.Retrieve(c.Request.Context(), blobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
			return
		}
		respondError(c, err)
		return
	}

	contentType := object.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, object.Data)
}

// Verify handles GET /walrus/verify/:blobId
func (h *RestBlobHandler) Verify(c *gin.Context) {
	blobID := c.Param("blobId")
	if blobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blobId is required"})
		return
	}

	status := h.blobStore.Validate(c.Request.Context(), blobID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"blobId":  status.BlobID,
		"valid":   status.Valid,
		"status":  status.Status,
		"url":     status.URL,
	})
}

type bulkVerifyRequest struct {
	BlobIDs []string `json:"blobIds"`
}

// VerifyBulk handles POST /walrus/verify-bulk. Each ID gets its own verdict;
// one bad blob never fails the batch.
func (h *RestBlobHandler) VerifyBulk(c *gin.Context) {
	var req bulkVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.BlobIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blobIds is required"})
		return
	}
	if len(req.BlobIDs) > maxBulkVerify {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d blob IDs per request", maxBulkVerify)})
		return
	}

	results := make([]models.BlobStatus, 0, len(req.BlobIDs))
	for _, blobID := range req.BlobIDs {
		results = append(results, h.blobStore.Validate(c.Request.Context(), blobID))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}
