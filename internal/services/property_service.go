package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/db"
	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/utils"
)

// CreatePropertyInput carries the fields of a new property. Images must have at
// least one entry; its first element becomes the primary image.
type CreatePropertyInput struct {
	Name         string
	Address      string
	Country      string
	State        string
	City         string
	PropertyType string
	Bedrooms     int
	Bathrooms    int
	FloorArea    string
	Description  string
	Price        float64
	Currency     string
	RentalPeriod string
	Caretaker    string
	Featured     bool
	Images       []models.ImageRef
}

// IPropertyService defines the interface for property-related operations.
type IPropertyService interface {
	Create(ctx context.Context, input CreatePropertyInput) (*models.Property, error)
	// Get is the public fetch: it increments the view counter.
	Get(ctx context.Context, id utils.SixID) (*models.Property, error)
	// Find is the internal lookup used by other operations; no view increment.
	Find(ctx context.Context, id utils.SixID) (*models.Property, error)
	List(ctx context.Context, page, pageSize int) (*models.PropertyPage, error)
	Update(ctx context.Context, id utils.SixID, updates map[string]interface{}, newImages []models.ImageRef) (*models.Property, error)
	Remove(ctx context.Context, id utils.SixID) error
	Search(ctx context.Context, filter models.SearchFilter) ([]models.Property, error)
	ListByCaretaker(ctx context.Context, address string) ([]models.Property, error)
	FindClaim(ctx context.Context, blobID string) (*models.BlobClaim, error)
	RebuildBlobIndex(ctx context.Context) (int64, error)
}

const (
	propertiesCollection = "properties"
	blobClaimsCollection = "blob_claims"
)

// propertyService implements IPropertyService.
type propertyService struct {
	db  *mongo.Database
	cfg *config.Config
	rdb *redis.Client // optional read cache; nil disables caching
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(db *mongo.Database, cfg *config.Config, rdb *redis.Client) IPropertyService {
	return &propertyService{db: db, cfg: cfg, rdb: rdb}
}

func validateCreate(input CreatePropertyInput) error {
	if input.Name == "" {
		return models.NewValidationError("name is required")
	}
	if input.Address == "" {
		return models.NewValidationError("address is required")
	}
	if input.Price <= 0 {
		return models.NewValidationError("price must be positive")
	}
	if input.Caretaker == "" {
		return models.NewValidationError("caretaker address is required")
	}
	if len(input.Images) == 0 {
		return models.NewValidationError("at least one image is required")
	}
	if input.Bedrooms < 0 || input.Bathrooms < 0 {
		return models.NewValidationError("bedroom and bathroom counts must be non-negative")
	}
	for i, img := range input.Images {
		if img.BlobID == "" {
			return models.NewValidationError("image %d has no blob ID", i)
		}
	}
	return nil
}

func blobIDsOf(images []models.ImageRef) []string {
	ids := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.BlobID
	}
	return ids
}

// Create inserts a new property and registers a blob claim for each image.
func (s *propertyService) Create(ctx context.Context, input CreatePropertyInput) (*models.Property, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	collection := s.db.Collection(propertiesCollection)
	now := time.Now().UTC()

	var newProperty *models.Property

	operation := func() error {
		newProperty = &models.Property{
			ID:           utils.NewSixID(),
			Name:         input.Name,
			Address:      input.Address,
			Country:      input.Country,
			State:        input.State,
			City:         input.City,
			PropertyType: input.PropertyType,
			Bedrooms:     input.Bedrooms,
			Bathrooms:    input.Bathrooms,
			FloorArea:    input.FloorArea,
			Description:  input.Description,
			Price:        input.Price,
			Currency:     input.Currency,
			RentalPeriod: input.RentalPeriod,
			Caretaker:    input.Caretaker,
			Featured:     input.Featured,
			Images:       input.Images,
			BlobIDs:      blobIDsOf(input.Images),
			Views:        0,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, insertErr := collection.InsertOne(ctx, newProperty)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		propertyIDStr := "<unknown>"
		if newProperty != nil {
			propertyIDStr = newProperty.ID.String()
		}
		return nil, fmt.Errorf("failed to insert new property (last attempted ID: %s) after multiple retries: %w",
			propertyIDStr, err)
	}

	if err := s.claimBlobs(ctx, newProperty.ID, newProperty.Images); err != nil {
		// Undo the insert so a reported failure leaves no half-created listing.
		// If the delete itself fails, the index rebuild task reconciles later.
		if _, delErr := collection.DeleteOne(ctx, bson.M{"_id": newProperty.ID}); delErr != nil {
			log.Printf("Failed to roll back property %s after claim failure: %v", newProperty.ID.String(), delErr)
		}
		return nil, err
	}

	return newProperty, nil
}

// claimBlobs upserts one reverse-index entry per image. The blob ID is the
// document key, so a later claim silently overwrites an earlier one (last
// writer wins); the rebuild task re-derives the index when that happens.
func (s *propertyService) claimBlobs(ctx context.Context, propertyID utils.SixID, images []models.ImageRef) error {
	claims := s.db.Collection(blobClaimsCollection)
	now := time.Now().UTC()
	for _, img := range images {
		claim := models.BlobClaim{BlobID: img.BlobID, PropertyID: propertyID, ClaimedAt: now}
		opts := options.Replace().SetUpsert(true)
		if _, err := claims.ReplaceOne(ctx, bson.M{"_id": img.BlobID}, claim, opts); err != nil {
			return fmt.Errorf("failed to register blob claim %s for property %s: %w", img.BlobID, propertyID.String(), err)
		}
	}
	return nil
}

func (s *propertyService) cacheKey(id utils.SixID) string {
	return "property:" + id.String()
}

func (s *propertyService) cacheSet(ctx context.Context, p *models.Property) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, s.cacheKey(p.ID), data, s.cfg.GetCacheTTL).Err(); err != nil {
		log.Printf("Failed to cache property %s: %v", p.ID.String(), err)
	}
}

func (s *propertyService) cacheInvalidate(ctx context.Context, id utils.SixID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, s.cacheKey(id)).Err(); err != nil {
		log.Printf("Failed to invalidate property cache %s: %v", id.String(), err)
	}
}

// Get fetches one property and atomically increments its view counter. The
// increment is committed on lookup and is not undone by downstream failures.
func (s *propertyService) Get(ctx context.Context, id utils.SixID) (*models.Property, error) {
	collection := s.db.Collection(propertiesCollection)

	update := bson.M{"$inc": bson.M{"views": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var property models.Property
	err := collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("error fetching property %s: %w", id.String(), err)
	}

	s.cacheSet(ctx, &property)
	return &property, nil
}

// Find looks up one property without touching the view counter.
func (s *propertyService) Find(ctx context.Context, id utils.SixID) (*models.Property, error) {
	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, s.cacheKey(id)).Bytes(); err == nil {
			var cached models.Property
			if json.Unmarshal(data, &cached) == nil {
				return &cached, nil
			}
		}
	}

	var property models.Property
	err := s.db.Collection(propertiesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("error finding property %s: %w", id.String(), err)
	}

	s.cacheSet(ctx, &property)
	return &property, nil
}

// List returns one page of properties, newest first.
func (s *propertyService) List(ctx context.Context, page, pageSize int) (*models.PropertyPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
		if pageSize <= 0 {
			pageSize = 12
		}
	}

	collection := s.db.Collection(propertiesCollection)

	total, err := collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.Property{}
	if err = cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode property list: %w", err)
	}

	return &models.PropertyPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// parseNumeric tolerates numeric fields arriving as JSON numbers or strings.
// Returns ok=false when the value cannot be interpreted; the field is then
// left unchanged.
func parseNumeric(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Update applies a partial field update and optionally appends new images.
// Unknown fields are ignored; numeric fields that fail to parse are left
// unchanged. The update timestamp is always refreshed.
func (s *propertyService) Update(ctx context.Context, id utils.SixID, updates map[string]interface{}, newImages []models.ImageRef) (*models.Property, error) {
	collection := s.db.Collection(propertiesCollection)

	set := bson.M{}
	for key, value := range updates {
		switch key {
		case "name", "address", "country", "state", "city", "property_type",
			"floor_area", "description", "currency", "rental_period":
			if str, ok := value.(string); ok {
				set[key] = str
			}
		case "price":
			if f, ok := parseNumeric(value); ok && f >= 0 {
				set[key] = f
			}
		case "bedrooms", "bathrooms":
			if f, ok := parseNumeric(value); ok && f >= 0 {
				set[key] = int(f)
			}
		case "featured":
			if b, ok := value.(bool); ok {
				set[key] = b
			}
		}
	}
	set["updated_at"] = time.Now().UTC()

	update := bson.M{"$set": set}
	if len(newImages) > 0 {
		for i, img := range newImages {
			if img.BlobID == "" {
				return nil, models.NewValidationError("new image %d has no blob ID", i)
			}
		}
		update["$push"] = bson.M{
			"images":   bson.M{"$each": newImages},
			"blob_ids": bson.M{"$each": blobIDsOf(newImages)},
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Property
	err := collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update property %s: %w", id.String(), err)
	}

	if len(newImages) > 0 {
		if err := s.claimBlobs(ctx, id, newImages); err != nil {
			return nil, err
		}
	}

	s.cacheInvalidate(ctx, id)
	return &updated, nil
}

// Remove deletes a property and the reverse-index entries it owns. The blobs
// themselves are not touched; the store is content-addressed and outside this
// system's control.
func (s *propertyService) Remove(ctx context.Context, id utils.SixID) error {
	collection := s.db.Collection(propertiesCollection)

	var property models.Property
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ErrNotFound
		}
		return fmt.Errorf("error finding property %s for removal: %w", id.String(), err)
	}

	if len(property.BlobIDs) > 0 {
		// Only claims still pointing at this property are removed; a blob
		// re-claimed by another listing keeps its newer entry.
		filter := bson.M{"_id": bson.M{"$in": property.BlobIDs}, "property_id": id}
		if _, err := s.db.Collection(blobClaimsCollection).DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("failed to remove blob claims for property %s: %w", id.String(), err)
		}
	}

	result, err := collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete property %s: %w", id.String(), err)
	}
	if result.DeletedCount == 0 {
		return models.ErrNotFound
	}

	s.cacheInvalidate(ctx, id)
	return nil
}

// Search returns properties matching all supplied filters. Results come back
// in creation order; there is no ranking.
func (s *propertyService) Search(ctx context.Context, filter models.SearchFilter) ([]models.Property, error) {
	query := bson.M{}

	if filter.Query != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Query), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"address": pattern},
			bson.M{"city": pattern},
			bson.M{"property_type": pattern},
		}
	}

	price := bson.M{"$gte": filter.MinPrice}
	if filter.MaxPrice > 0 {
		price["$lte"] = filter.MaxPrice
	}
	query["price"] = price

	if filter.MinBedrooms > 0 {
		query["bedrooms"] = bson.M{"$gte": filter.MinBedrooms}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(propertiesCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute property search: %w", err)
	}
	defer cursor.Close(ctx)

	results := []models.Property{}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode property search results: %w", err)
	}
	return results, nil
}

// ListByCaretaker returns every property whose caretaker address equals the
// argument, compared case-insensitively.
func (s *propertyService) ListByCaretaker(ctx context.Context, address string) ([]models.Property, error) {
	if address == "" {
		return nil, models.NewValidationError("caretaker address is required")
	}

	pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(address) + "$", Options: "i"}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.db.Collection(propertiesCollection).Find(ctx, bson.M{"caretaker": pattern}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties for caretaker %s: %w", address, err)
	}
	defer cursor.Close(ctx)

	results := []models.Property{}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode caretaker properties: %w", err)
	}
	return results, nil
}

// FindClaim answers "which property claims this blob" from the reverse index.
func (s *propertyService) FindClaim(ctx context.Context, blobID string) (*models.BlobClaim, error) {
	var claim models.BlobClaim
	err := s.db.Collection(blobClaimsCollection).FindOne(ctx, bson.M{"_id": blobID}).Decode(&claim)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("error looking up blob claim %s: %w", blobID, err)
	}
	return &claim, nil
}

// RebuildBlobIndex re-derives the entire reverse index from the properties
// collection. The index is a derived structure; this makes it self-healing
// after the last-writer-wins soft spot corrupts an entry.
func (s *propertyService) RebuildBlobIndex(ctx context.Context) (int64, error) {
	claims := s.db.Collection(blobClaimsCollection)

	if _, err := claims.DeleteMany(ctx, bson.M{}); err != nil {
		return 0, fmt.Errorf("failed to clear blob claims: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(propertiesCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to scan properties for index rebuild: %w", err)
	}
	defer cursor.Close(ctx)

	var rebuilt int64
	for cursor.Next(ctx) {
		var property models.Property
		if err := cursor.Decode(&property); err != nil {
			return rebuilt, fmt.Errorf("failed to decode property during index rebuild: %w", err)
		}
		if err := s.claimBlobs(ctx, property.ID, property.Images); err != nil {
			return rebuilt, err
		}
		rebuilt += int64(len(property.Images))
	}
	if err := cursor.Err(); err != nil {
		return rebuilt, fmt.Errorf("cursor error during index rebuild: %w", err)
	}

	return rebuilt, nil
}
