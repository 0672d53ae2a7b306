package scraper

import (
	"github.com/PuerkitoBio/goquery"

	"listing-scraper/models"
)

// Site describes the source-specific parts of a search: how to address a
// results page and how to read the page-level signals.
type Site interface {
	PageURL(s *models.SearchSession, page int) string
	// NoResults reports the source's explicit "nothing matched" signal.
	NoResults(doc *goquery.Document) bool
	// TotalAvailable reads the result count when the page exposes one.
	TotalAvailable(doc *goquery.Document) (int, bool)
}
