package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SearchSession is one user query driven through the pipeline.
// It is owned by a single Controller run and discarded afterwards.
type SearchSession struct {
	ID           string
	Query        string
	PropertyType string
	MinPrice     *float64
	MaxPrice     *float64
	Bedrooms     *RoomCount
	Page         int
	MaxPages     int
	// MaxRecords caps the number of collected listings. Zero means no cap.
	MaxRecords int
	// TotalAvailable is discovered on page 1 when the source exposes it.
	TotalAvailable *int
	StartedAt      time.Time
}

// NewSearchSession starts a session at page 1 with a fresh ID.
func NewSearchSession(query string, maxPages int) *SearchSession {
	return &SearchSession{
		ID:        uuid.NewString(),
		Query:     strings.TrimSpace(query),
		Page:      1,
		MaxPages:  maxPages,
		StartedAt: time.Now(),
	}
}

// RawRecord holds unprocessed text pulled off a results page.
// A nil field means the extractor could not find it.
type RawRecord struct {
	Title         *string
	PriceText     *string
	Location      *string
	PropertyType  *string
	BedroomsText  *string
	BathroomsText *string
	AreaText      *string
	Agent         *string
	Developer     *string
	Link          *string
	Description   *string
	ListedText    *string

	Page     int
	Strategy string
}

// CanonicalListing is the normalized, typed record. Optional values are
// pointers; nil means absent.
type CanonicalListing struct {
	Project      string     `json:"project"`
	PropertyType *string    `json:"property_type"`
	Price        *float64   `json:"price"`
	AreaSqft     *float64   `json:"area_sqft"`
	Bedrooms     *RoomCount `json:"bedrooms"`
	Bathrooms    *RoomCount `json:"bathrooms"`
	Location     *string    `json:"location"`
	Developer    *string    `json:"developer"`
	AgentName    *string    `json:"agent_name"`
	PropertyURL  *string    `json:"property_url"`
	Description  *string    `json:"description"`
	PricePerSqft *float64   `json:"price_per_sqft"`

	Page     int `json:"page"`
	Position int `json:"position"`
}

// Str returns a pointer to s, or nil when s is blank.
func Str(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
