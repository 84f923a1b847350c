package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/ledger"
	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/services"
	"github.com/emmystark/dwello/internal/storage"
	"github.com/emmystark/dwello/internal/tasks"
	"github.com/emmystark/dwello/internal/utils"
)

// IAsynqClient abstracts the asynq client for testability.
type IAsynqClient interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RestPropertyHandler handles REST requests for properties.
type RestPropertyHandler struct {
	cfg             *config.Config
	propertyService services.IPropertyService
	blobStore       storage.BlobStore
	ledgerClient    ledger.IClient
	taskClient      IAsynqClient
}

// NewRestPropertyHandler creates a new RestPropertyHandler.
func NewRestPropertyHandler(cfg *config.Config, propertyService services.IPropertyService, blobStore storage.BlobStore, ledgerClient ledger.IClient, taskClient IAsynqClient) *RestPropertyHandler {
	return &RestPropertyHandler{
		cfg:             cfg,
		propertyService: propertyService,
		blobStore:       blobStore,
		ledgerClient:    ledgerClient,
		taskClient:      taskClient,
	}
}

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		var uploadErr *models.UploadError
		var retrievalErr *models.RetrievalError
		var ledgerErr *models.LedgerQueryError
		if errors.As(err, &uploadErr) || errors.As(err, &retrievalErr) || errors.As(err, &ledgerErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type createPropertyRequest struct {
	Name         string            `json:"name"`
	Address      string            `json:"address"`
	Country      string            `json:"country"`
	State        string            `json:"state"`
	City         string            `json:"city"`
	PropertyType string            `json:"propertyType"`
	Bedrooms     int               `json:"bedrooms"`
	Bathrooms    int               `json:"bathrooms"`
	FloorArea    string            `json:"floorArea"`
	Description  string            `json:"description"`
	Price        float64           `json:"price"`
	Currency     string            `json:"currency"`
	RentalPeriod string            `json:"rentalPeriod"`
	Caretaker    string            `json:"caretaker"`
	Featured     bool              `json:"featured"`
	Images       []models.ImageRef `json:"images"`
}

func (r createPropertyRequest) toInput() services.CreatePropertyInput {
	return services.CreatePropertyInput{
		Name:         r.Name,
		Address:      r.Address,
		Country:      r.Country,
		State:        r.State,
		City:         r.City,
		PropertyType: r.PropertyType,
		Bedrooms:     r.Bedrooms,
		Bathrooms:    r.Bathrooms,
		FloorArea:    r.FloorArea,
		Description:  r.Description,
		Price:        r.Price,
		Currency:     r.Currency,
		RentalPeriod: r.RentalPeriod,
		Caretaker:    r.Caretaker,
		Featured:     r.Featured,
		Images:       r.Images,
	}
}

// uploadFormFile validates and uploads one multipart file to the blob store.
func (h *RestPropertyHandler) uploadFormFile(c *gin.Context, fileHeader *multipart.FileHeader) (*models.ImageRef, error) {
	if err := checkUploadable(fileHeader, h.cfg.UploadMaxSizeMB); err != nil {
		return nil, err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	result, err := h.blobStore.Upload(c.Request.Context(), data, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	return &models.ImageRef{BlobID: result.BlobID, URL: result.URL}, nil
}

// CreateProperty handles POST /properties. The request is either a JSON body
// carrying pre-uploaded blob references or a multipart form with raw files;
// the two are mutually exclusive.
func (h *RestPropertyHandler) CreateProperty(c *gin.Context) {
	contentType := c.ContentType()

	var input services.CreatePropertyInput

	if contentType == "multipart/form-data" {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		files := form.File["images"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one image file is required"})
			return
		}
		if len(form.Value["images"]) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "raw files and blob references are mutually exclusive"})
			return
		}

		input = services.CreatePropertyInput{
			Name:         c.PostForm("name"),
			Address:      c.PostForm("address"),
			Country:      c.PostForm("country"),
			State:        c.PostForm("state"),
			City:         c.PostForm("city"),
			PropertyType: c.PostForm("propertyType"),
			FloorArea:    c.PostForm("floorArea"),
			Description:  c.PostForm("description"),
			Currency:     c.PostForm("currency"),
			RentalPeriod: c.PostForm("rentalPeriod"),
			Caretaker:    c.PostForm("caretaker"),
		}
		input.Price, _ = strconv.ParseFloat(c.PostForm("price"), 64)
		input.Bedrooms, _ = strconv.Atoi(c.PostForm("bedrooms"))
		input.Bathrooms, _ = strconv.Atoi(c.PostForm("bathrooms"))

		for _, fileHeader := range files {
			ref, err := h.uploadFormFile(c, fileHeader)
			if err != nil {
				respondError(c, err)
				return
			}
			input.Images = append(input.Images, *ref)
		}
	} else {
		var req createPropertyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		input = req.toInput()
	}

	property, err := h.propertyService.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	h.enqueueBlobAudit(property.ID)

	c.JSON(http.StatusCreated, gin.H{"success": true, "property": property})
}

// enqueueBlobAudit schedules an asynchronous re-validation of the blobs a
// property claims. Enqueue failures are logged, never surfaced: the audit is
// advisory.
func (h *RestPropertyHandler) enqueueBlobAudit(propertyID utils.SixID) {
	if h.taskClient == nil {
		return
	}
	task, err := tasks.NewBlobAuditTask(propertyID.String())
	if err != nil {
		log.Printf("Failed to build blob audit task for %s: %v", propertyID.String(), err)
		return
	}
	if _, err := h.taskClient.Enqueue(task); err != nil {
		log.Printf("Failed to enqueue blob audit for %s: %v", propertyID.String(), err)
	}
}

// ListProperties handles GET /properties with page/pageSize query parameters.
func (h *RestPropertyHandler) ListProperties(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "0"))

	result, err := h.propertyService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"properties": result.Items,
		"total":      result.Total,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalPages": result.TotalPages,
	})
}

// GetProperty handles GET /properties/:id. This is the public fetch: the view
// counter is incremented.
func (h *RestPropertyHandler) GetProperty(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property ID format"})
		return
	}

	property, err := h.propertyService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "property": property})
}

// UpdateProperty handles PUT /properties/:id: a partial field update with
// optional additional images.
func (h *RestPropertyHandler) UpdateProperty(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property ID format"})
		return
	}

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var newImages []models.ImageRef
	if raw, ok := body["newImages"]; ok {
		if err := json.Unmarshal(raw, &newImages); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid newImages"})
			return
		}
		delete(body, "newImages")
	}

	updates := make(map[string]interface{}, len(body))
	for key, raw := range body {
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		updates[jsonToFieldName(key)] = value
	}

	property, err := h.propertyService.Update(c.Request.Context(), id, updates, newImages)
	if err != nil {
		respondError(c, err)
		return
	}

	if len(newImages) > 0 {
		h.enqueueBlobAudit(id)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "property": property})
}

// jsonToFieldName maps the API's camelCase field names onto the store's
// snake_case ones. Unknown names pass through and are discarded downstream.
func jsonToFieldName(key string) string {
	switch key {
	case "propertyType":
		return "property_type"
	case "floorArea":
		return "floor_area"
	case "rentalPeriod":
		return "rental_period"
	default:
		return key
	}
}

// DeleteProperty handles DELETE /properties/:id.
func (h *RestPropertyHandler) DeleteProperty(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property ID format"})
		return
	}

	if err := h.propertyService.Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SearchProperties handles GET /properties/search/:query with optional
// minPrice/maxPrice/minBedrooms query parameters.
func (h *RestPropertyHandler) SearchProperties(c *gin.Context) {
	filter := models.SearchFilter{Query: c.Param("query")}

	if v := c.Query("minPrice"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			filter.MinPrice = f
		}
	}
	if v := c.Query("maxPrice"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			filter.MaxPrice = f
		}
	}
	if v := c.Query("minBedrooms"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.MinBedrooms = n
		}
	}

	results, err := h.propertyService.Search(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "properties": results, "count": len(results)})
}

// CaretakerProperties handles GET /caretaker/:address/properties. With
// ?include=onchain the response also carries the caretaker's on-chain listing
// objects from the ledger.
func (h *RestPropertyHandler) CaretakerProperties(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caretaker address is required"})
		return
	}

	properties, err := h.propertyService.ListByCaretaker(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"success": true, "properties": properties, "count": len(properties)}

	if c.Query("include") == "onchain" {
		onChain, err := h.ledgerClient.ListCaretakerListings(c.Request.Context(), address)
		if err != nil {
			// On-chain enrichment is best effort; the store listings stand alone.
			log.Printf("Failed to fetch on-chain listings for %s: %v", address, err)
			response["onChainError"] = err.Error()
		} else {
			response["onChain"] = onChain
		}
	}

	c.JSON(http.StatusOK, response)
}
