package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emmystark/dwello/internal/api/middleware"
	"github.com/emmystark/dwello/internal/ledger"
	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/services"
	"github.com/emmystark/dwello/internal/storage"
	"github.com/emmystark/dwello/internal/utils"
)

// RestAccessHandler handles payment verification and access gating endpoints.
type RestAccessHandler struct {
	accessService   services.IAccessService
	propertyService services.IPropertyService
	ledgerClient    ledger.IClient
	blobStore       storage.BlobStore
}

// NewRestAccessHandler creates a new RestAccessHandler.
func NewRestAccessHandler(accessService services.IAccessService, propertyService services.IPropertyService, ledgerClient ledger.IClient, blobStore storage.BlobStore) *RestAccessHandler {
	return &RestAccessHandler{
		accessService:   accessService,
		propertyService: propertyService,
		ledgerClient:    ledgerClient,
		blobStore:       blobStore,
	}
}

// PaymentStatus handles GET /payment-status?address=...&listingId=...
func (h *RestAccessHandler) PaymentStatus(c *gin.Context) {
	address := c.Query("address")
	listingID := c.Query("listingId")
	if address == "" || listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and listingId are required"})
		return
	}

	status, err := h.accessService.PaymentStatus(c.Request.Context(), address, listingID)
	if err != nil {
		// A ledger failure is reported as such, never as an implicit verdict.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "hasPaid": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"hasPaid":   status.HasPaid,
		"passId":    status.PassID,
		"amount":    status.Amount,
		"timestamp": status.Timestamp,
	})
}

// VerifyAccess handles GET /verify-access?address=...&listingId=...&blobId=...
// A granted decision comes back with a short-lived access token the caller can
// present on subsequent gated requests.
func (h *RestAccessHandler) VerifyAccess(c *gin.Context) {
	address := c.Query("address")
	listingID := c.Query("listingId")
	if address == "" || listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and listingId are required"})
		return
	}
	blobID := c.Query("blobId")

	decision := h.accessService.CheckAccess(c.Request.Context(), address, listingID, blobID)

	response := gin.H{
		"success":         true,
		"accessGranted":   decision.AccessGranted,
		"paymentVerified": decision.PaymentVerified,
		"blobValid":       decision.BlobValid,
		"passId":          decision.PassID,
	}
	if decision.Error != "" {
		response["error"] = decision.Error
	}

	if decision.AccessGranted {
		token, err := h.accessService.GenerateAccessToken(address, listingID)
		if err == nil {
			response["accessToken"] = token
		}
	}

	c.JSON(http.StatusOK, response)
}

// BlobValidation handles GET /blob-validation/:blobId. The response carries
// the aggregator's verdict plus, when known, which property claims the blob.
func (h *RestAccessHandler) BlobValidation(c *gin.Context) {
	blobID := c.Param("blobId")
	if blobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blobId is required"})
		return
	}

	status := h.blobStore.Validate(c.Request.Context(), blobID)

	response := gin.H{
		"success": true,
		"blobId":  status.BlobID,
		"valid":   status.Valid,
		"status":  status.Status,
	}
	if status.URL != "" {
		response["url"] = status.URL
	}
	if status.Error != "" {
		response["error"] = status.Error
	}

	if claim, err := h.propertyService.FindClaim(c.Request.Context(), blobID); err == nil {
		response["claimedBy"] = claim.PropertyID.String()
	} else if !errors.Is(err, models.ErrNotFound) {
		response["claimError"] = err.Error()
	}

	c.JSON(http.StatusOK, response)
}

// IsCaretaker handles GET /is-caretaker/:address
func (h *RestAccessHandler) IsCaretaker(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	isCaretaker, err := h.ledgerClient.IsCaretaker(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "isCaretaker": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "address": address, "isCaretaker": isCaretaker})
}

// PropertyDetails handles GET /properties/:id/details. The route sits behind
// the access gate; by the time this runs the decision in the context is a
// grant. Detail fetches do not bump the view counter, the public get does.
func (h *RestAccessHandler) PropertyDetails(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property ID format"})
		return
	}

	property, err := h.propertyService.Find(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"success": true, "property": property}
	if decision, ok := c.Get(middleware.ContextKeyDecision); ok {
		response["decision"] = decision
	}

	c.JSON(http.StatusOK, response)
}

// PropertyImages handles GET /properties/:id/images behind the access gate.
func (h *RestAccessHandler) PropertyImages(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property ID format"})
		return
	}

	property, err := h.propertyService.Find(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"images":  property.Images,
		"blobIds": property.BlobIDs,
	})
}
