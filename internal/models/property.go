package models

import (
	"time"

	"github.com/emmystark/dwello/internal/utils"
)

// ImageRef is one media entry of a property. BlobID is the content identifier
// assigned by the blob store; URL is where the bytes can be fetched from.
// The first ImageRef of a property is its primary image.
type ImageRef struct {
	BlobID string `bson:"blob_id" json:"blobId"`
	URL    string `bson:"url" json:"url"`
	Amount string `bson:"amount,omitempty" json:"amount,omitempty"`
}

// Property represents one property for sale or rent.
type Property struct {
	ID           utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
	Name         string      `bson:"name" json:"name"`
	Address      string      `bson:"address" json:"address"`
	Country      string      `bson:"country" json:"country"`
	State        string      `bson:"state" json:"state"`
	City         string      `bson:"city" json:"city"`
	PropertyType string      `bson:"property_type" json:"propertyType"`
	Bedrooms     int         `bson:"bedrooms" json:"bedrooms"`
	Bathrooms    int         `bson:"bathrooms" json:"bathrooms"`
	FloorArea    string      `bson:"floor_area" json:"floorArea"`
	Description  string      `bson:"description" json:"description"`
	Price        float64     `bson:"price" json:"price"`
	Currency     string      `bson:"currency" json:"currency"`
	RentalPeriod string      `bson:"rental_period,omitempty" json:"rentalPeriod,omitempty"`
	// Caretaker is the lister's ledger address. Opaque; matched case-insensitively.
	Caretaker string     `bson:"caretaker" json:"caretaker"`
	Images    []ImageRef `bson:"images" json:"images"`
	// BlobIDs is always exactly the ordered blob IDs of Images.
	BlobIDs   []string  `bson:"blob_ids" json:"blobIds"`
	Views     int64     `bson:"views" json:"views"`
	Featured  bool      `bson:"featured" json:"featured"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// PrimaryImage returns the designated primary image, or nil if the property has none.
func (p *Property) PrimaryImage() *ImageRef {
	if len(p.Images) == 0 {
		return nil
	}
	return &p.Images[0]
}

// BlobClaim maps a blob ID to the property currently claiming it (the reverse
// index). The blob ID is the document key, so at most one property claims a
// given blob at any time; a later claim overwrites an earlier one.
type BlobClaim struct {
	BlobID     string      `bson:"_id" json:"blobId"`
	PropertyID utils.SixID `bson:"property_id" json:"propertyId"`
	ClaimedAt  time.Time   `bson:"claimed_at" json:"claimedAt"`
}

// PropertyPage is one page of a property listing query.
type PropertyPage struct {
	Items      []Property `json:"items"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalPages int        `json:"totalPages"`
}

// SearchFilter carries the optional constraints of a property search.
// MaxPrice 0 means unbounded.
type SearchFilter struct {
	Query       string
	MinPrice    float64
	MaxPrice    float64
	MinBedrooms int
}
