package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emmystark/dwello/internal/services"
)

const (
	// ContextKeyDecision holds the key for the access decision in Gin context.
	ContextKeyDecision = "accessDecision"
	// ContextKeyAddress holds the key for the verified caller address.
	ContextKeyAddress = "callerAddress"
)

// grantToken extracts a grant token from the access_token query parameter or
// a bearer Authorization header.
func grantToken(c *gin.Context) string {
	if token := c.Query("access_token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}

// RequireAccess guards paid-content routes. The caller address comes from the
// "address" query parameter and the listing from the :id path parameter;
// missing either is a 400 before any gate logic runs. A valid grant token
// skips the full gate check; everything else goes through CheckAccess and is
// denied unless the gate explicitly grants.
func RequireAccess(accessService services.IAccessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Query("address")
		listingID := c.Param("id")

		if address == "" || listingID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "address and listing id are required"})
			return
		}

		c.Set(ContextKeyAddress, address)

		if token := grantToken(c); token != "" {
			if accessService.ValidateAccessToken(token, address, listingID) {
				c.Next()
				return
			}
			// Invalid token is not a denial; fall through to the full check.
		}

		decision := accessService.CheckAccess(c.Request.Context(), address, listingID, c.Query("blobId"))
		if !decision.AccessGranted {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "access denied",
				"decision": decision,
			})
			return
		}

		c.Set(ContextKeyDecision, decision)
		c.Next()
	}
}
