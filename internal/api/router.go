package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/emmystark/dwello/internal/api/handlers"
	"github.com/emmystark/dwello/internal/api/middleware"
	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/ledger"
	"github.com/emmystark/dwello/internal/services"
	"github.com/emmystark/dwello/internal/storage"
	"github.com/emmystark/dwello/internal/tasks"
)

// Deps carries the shared dependencies the routers are wired from.
type Deps struct {
	Cfg             *config.Config
	DB              *mongo.Database
	PropertyService services.IPropertyService
	AccessService   services.IAccessService
	LedgerClient    ledger.IClient
	BlobStore       storage.BlobStore
	TaskClient      handlers.IAsynqClient
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Cfg

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	propertyHandler := handlers.NewRestPropertyHandler(cfg, deps.PropertyService, deps.BlobStore, deps.LedgerClient, deps.TaskClient)
	accessHandler := handlers.NewRestAccessHandler(deps.AccessService, deps.PropertyService, deps.LedgerClient, deps.BlobStore)
	blobHandler := handlers.NewRestBlobHandler(cfg, deps.BlobStore)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "app": cfg.AppName})
	})

	// Property routes
	r.POST("/properties", propertyHandler.CreateProperty)
	r.GET("/properties", propertyHandler.ListProperties)
	r.GET("/properties/:id", propertyHandler.GetProperty)
	r.PUT("/properties/:id", propertyHandler.UpdateProperty)
	r.DELETE("/properties/:id", propertyHandler.DeleteProperty)
	r.GET("/properties/search/:query", propertyHandler.SearchProperties)
	r.GET("/caretaker/:address/properties", propertyHandler.CaretakerProperties)

	// Payment-gated routes
	gated := r.Group("/")
	gated.Use(middleware.RequireAccess(deps.AccessService))
	{
		gated.GET("/properties/:id/details", accessHandler.PropertyDetails)
		gated.GET("/properties/:id/images", accessHandler.PropertyImages)
	}

	// Access verification routes
	r.GET("/payment-status", accessHandler.PaymentStatus)
	r.GET("/verify-access", accessHandler.VerifyAccess)
	r.GET("/blob-validation/:blobId", accessHandler.BlobValidation)
	r.GET("/is-caretaker/:address", accessHandler.IsCaretaker)

	// Blob store routes
	r.POST("/walrus/upload", blobHandler.Upload)
	r.GET("/walrus/file/:blobId", blobHandler.GetFile)
	r.GET("/walrus/verify/:blobId", blobHandler.Verify)
	r.POST("/walrus/verify-bulk", blobHandler.VerifyBulk)

	return r
}

// SetupServiceRouter configures and returns the service Gin engine used for
// operational commands on localhost.
func SetupServiceRouter(cfg *config.Config, taskClient handlers.IAsynqClient, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				log.Println("Shutdown signal sent successfully.")
			default:
				log.Println("Shutdown channel already signaled or blocked.")
			}
		case "rebuildBlobIndex":
			task, err := tasks.NewIndexRebuildTask()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			if _, err := taskClient.Enqueue(task); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Blob index rebuild enqueued"})
		case "auditBlobs":
			task, err := tasks.NewBlobAuditTask("")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			if _, err := taskClient.Enqueue(task); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Blob audit enqueued"})
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
