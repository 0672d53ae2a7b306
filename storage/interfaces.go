package storage

import "listing-scraper/models"

// ListingWriter is the interface any export backend must satisfy.
type ListingWriter interface {
	Write(listings []models.CanonicalListing) error
	Close() error
}

// Columns is the fixed export schema, in order.
var Columns = []string{
	"project", "property_type", "price", "area_sqft", "bedrooms", "bathrooms",
	"location", "developer", "agent_name", "property_url", "description",
	"price_per_sqft", "exported_at",
}
