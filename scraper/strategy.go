package scraper

import (
	"github.com/PuerkitoBio/goquery"

	"listing-scraper/models"
)

// Extractor pulls raw listing records out of a results page.
type Extractor interface {
	Name() string
	Extract(doc *goquery.Document, page int) ([]models.RawRecord, []models.Diagnostic)
}

// StrategyNone is reported when no extractor produced records.
const StrategyNone = "none"

// ExtractPage tries the extractors in priority order and returns the records
// of the first one that finds any, with the name of that extractor.
// Diagnostics from every extractor that ran are returned.
func ExtractPage(doc *goquery.Document, page int, extractors []Extractor) ([]models.RawRecord, string, []models.Diagnostic) {
	var diags []models.Diagnostic
	for _, ex := range extractors {
		records, d := ex.Extract(doc, page)
		diags = append(diags, d...)
		if len(records) > 0 {
			return records, ex.Name(), diags
		}
	}
	return nil, StrategyNone, diags
}
