package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/services"
	"github.com/emmystark/dwello/internal/storage"
	"github.com/emmystark/dwello/internal/utils"
)

// Task types handled by the background worker.
const (
	TypeBlobAudit    = "blob:audit"
	TypeIndexRebuild = "blobindex:rebuild"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// BlobAuditPayload names the property whose blob claims should be
// re-validated. An empty PropertyID audits every property.
type BlobAuditPayload struct {
	PropertyID string `json:"property_id,omitempty"`
}

// NewBlobAuditTask builds a blob audit task for one property, or for all
// properties when propertyID is empty.
func NewBlobAuditTask(propertyID string) (*asynq.Task, error) {
	payload, err := json.Marshal(BlobAuditPayload{PropertyID: propertyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBlobAudit, payload, asynq.Queue("low")), nil
}

// NewIndexRebuildTask builds a task that re-derives the blob reverse index
// from the properties collection.
func NewIndexRebuildTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeIndexRebuild, nil, asynq.Queue("default")), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds the dependencies task handlers need.
type TaskProcessor struct {
	cfg             *config.Config
	propertyService services.IPropertyService
	blobStore       storage.BlobStore
}

func NewTaskProcessor(cfg *config.Config, propertyService services.IPropertyService, blobStore storage.BlobStore) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		propertyService: propertyService,
		blobStore:       blobStore,
	}
}

// SetupServer configures an Asynq server with the task handlers registered.
// The caller runs it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBlobAudit, processor.HandleBlobAuditTask)
	mux.HandleFunc(TypeIndexRebuild, processor.HandleIndexRebuildTask)
	log.Println("Registered background task handlers.")

	return srv, mux
}

// HandleBlobAuditTask re-checks the blobs a property references against the
// aggregator. Invalid blobs are logged; the property record is left alone so
// a transient aggregator outage never mutilates listings.
func (p *TaskProcessor) HandleBlobAuditTask(ctx context.Context, t *asynq.Task) error {
	var payload BlobAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal blob audit payload: %v: %w", err, asynq.SkipRetry)
	}

	if payload.PropertyID != "" {
		id, err := utils.ParseSixID(payload.PropertyID)
		if err != nil {
			log.Printf("Invalid property ID in blob audit payload: %s", payload.PropertyID)
			return fmt.Errorf("invalid property ID in payload: %w", asynq.SkipRetry)
		}
		return p.auditProperty(ctx, id)
	}

	// Full sweep: walk the listings page by page.
	const pageSize = 100
	for page := 1; ; page++ {
		result, err := p.propertyService.List(ctx, page, pageSize)
		if err != nil {
			return fmt.Errorf("blob audit sweep failed on page %d: %w", page, err)
		}
		for i := range result.Items {
			p.auditBlobs(ctx, &result.Items[i])
		}
		if page >= result.TotalPages {
			break
		}
	}
	return nil
}

func (p *TaskProcessor) auditProperty(ctx context.Context, id utils.SixID) error {
	property, err := p.propertyService.Find(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Deleted since the task was enqueued, nothing to audit.
			return nil
		}
		return err
	}
	p.auditBlobs(ctx, property)
	return nil
}

func (p *TaskProcessor) auditBlobs(ctx context.Context, property *models.Property) {
	for _, blobID := range property.BlobIDs {
		status := p.blobStore.Validate(ctx, blobID)
		if !status.Valid {
			log.Printf("Blob audit: property %s references invalid blob %s (status %d, error %q)",
				property.ID.String(), blobID, status.Status, status.Error)
		}
	}
}

// HandleIndexRebuildTask re-derives blob_claims from the properties
// collection.
func (p *TaskProcessor) HandleIndexRebuildTask(ctx context.Context, t *asynq.Task) error {
	count, err := p.propertyService.RebuildBlobIndex(ctx)
	if err != nil {
		return fmt.Errorf("blob index rebuild failed: %w", err)
	}
	log.Printf("Blob index rebuilt: %d claims", count)
	return nil
}
