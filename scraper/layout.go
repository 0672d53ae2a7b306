package scraper

import (
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"listing-scraper/models"
	"listing-scraper/utils"
)

var (
	bedsTextRegexp  = regexp.MustCompile(`(?i)\b(\d+\+?)\s*(?:beds?|bedrooms?|br)\b|\b(studio)\b`)
	bathsTextRegexp = regexp.MustCompile(`(?i)\b(\d+\+?)\s*(?:baths?|bathrooms?|ba)\b`)
	areaTextRegexp  = regexp.MustCompile(`(?i)\b(\d[\d,]*(?:\.\d+)?\s*(?:sq\.?\s*ft|sqft|ft²|square\s+feet|sq\.?\s*m|sqm|m²|square\s+met(?:er|re)s?))`)
)

// LayoutExtractor reads listings from repeated card elements using a RuleSet.
type LayoutExtractor struct {
	rules  RuleSet
	logger *utils.Logger
}

// NewLayoutExtractor compiles a private copy of rules.
func NewLayoutExtractor(rules RuleSet, logger *utils.Logger) (*LayoutExtractor, error) {
	compiled := rules.Clone()
	if err := compiled.Compile(); err != nil {
		return nil, err
	}
	return &LayoutExtractor{rules: compiled, logger: logger}, nil
}

func (e *LayoutExtractor) Name() string { return "layout" }

func (e *LayoutExtractor) Extract(doc *goquery.Document, page int) ([]models.RawRecord, []models.Diagnostic) {
	cards, selector := e.findCards(doc)
	if cards == nil {
		return nil, nil
	}
	e.logger.Debug("[layout] page %d: %d cards via %q", page, cards.Length(), selector)

	var records []models.RawRecord
	var diags []models.Diagnostic
	cards.Each(func(i int, card *goquery.Selection) {
		rec := e.extractCard(card, page)
		if isEmptyRecord(rec) {
			diags = append(diags, models.Diagnostic{
				Stage:  models.StageExtract,
				Kind:   models.MalformedContentError,
				Page:   page,
				URL:    docURL(doc),
				Reason: fmt.Sprintf("card %d matched %q but no field could be read", i+1, selector),
			})
			return
		}
		if rec.Link != nil {
			rec.Link = models.Str(resolveLink(doc, *rec.Link))
		}
		records = append(records, rec)
	})
	return records, diags
}

// findCards returns the matches of the first card selector that matches anything.
func (e *LayoutExtractor) findCards(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range e.rules.Cards {
		if cards := doc.Find(sel); cards.Length() > 0 {
			return cards, sel
		}
	}
	return nil, ""
}

func (e *LayoutExtractor) extractCard(card *goquery.Selection, page int) models.RawRecord {
	get := func(f Field) *string {
		return e.rules.Fields[f].Extract(card)
	}
	rec := models.RawRecord{
		Title:         get(FieldTitle),
		PriceText:     get(FieldPrice),
		Location:      get(FieldLocation),
		PropertyType:  get(FieldPropertyType),
		BedroomsText:  get(FieldBedrooms),
		BathroomsText: get(FieldBathrooms),
		AreaText:      get(FieldArea),
		Agent:         get(FieldAgent),
		Developer:     get(FieldDeveloper),
		Link:          get(FieldLink),
		Description:   get(FieldDescription),
		ListedText:    get(FieldListed),
		Page:          page,
		Strategy:      "layout",
	}

	if rec.BedroomsText == nil || rec.BathroomsText == nil || rec.AreaText == nil {
		text := spacedText(card)
		if rec.BedroomsText == nil {
			rec.BedroomsText = firstGroup(bedsTextRegexp, text)
		}
		if rec.BathroomsText == nil {
			rec.BathroomsText = firstGroup(bathsTextRegexp, text)
		}
		if rec.AreaText == nil {
			rec.AreaText = firstGroup(areaTextRegexp, text)
		}
	}
	return rec
}

// firstGroup returns the first non-empty capture group of the leftmost match.
func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	for _, g := range m[1:] {
		if g != "" {
			return models.Str(g)
		}
	}
	return nil
}

func isEmptyRecord(r models.RawRecord) bool {
	for _, f := range []*string{
		r.Title, r.PriceText, r.Location, r.PropertyType, r.BedroomsText,
		r.BathroomsText, r.AreaText, r.Agent, r.Developer, r.Link,
		r.Description, r.ListedText,
	} {
		if f != nil {
			return false
		}
	}
	return true
}
