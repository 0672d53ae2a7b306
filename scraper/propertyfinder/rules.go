package propertyfinder

import "listing-scraper/scraper"

func tid(name string) string { return `[data-testid="` + name + `"]` }

// DefaultRules are the card and field selectors for the current search
// results markup, with older class-based layouts as fallbacks.
func DefaultRules() scraper.RuleSet {
	return scraper.RuleSet{
		Cards: []string{
			`article[data-testid="property-card"]`,
			`li[data-testid="list-item"]`,
			"div.card-list__item",
		},
		Fields: map[scraper.Field]scraper.Chain{
			scraper.FieldTitle: {
				{Selector: tid("property-card-title")},
				{Selector: "h2"},
			},
			scraper.FieldPrice: {
				{Selector: tid("property-card-price")},
				{Selector: ".card__price"},
				{Pattern: `(?i)(AED\s*[\d,]+|[\d,]{5,}\s*AED)`},
			},
			scraper.FieldLocation: {
				{Selector: tid("property-card-location")},
				{Selector: ".card__location"},
			},
			scraper.FieldPropertyType: {
				{Selector: tid("property-card-type")},
				{Selector: ".card__property-type"},
			},
			scraper.FieldBedrooms: {
				{Selector: tid("property-card-spec-bedroom")},
				{Selector: ".card__property-amenity--bedrooms"},
			},
			scraper.FieldBathrooms: {
				{Selector: tid("property-card-spec-bathroom")},
				{Selector: ".card__property-amenity--bathrooms"},
			},
			scraper.FieldArea: {
				{Selector: tid("property-card-spec-area")},
				{Selector: ".card__property-amenity--area"},
			},
			scraper.FieldAgent: {
				{Selector: tid("property-card-agent-name")},
				{Selector: tid("property-card-broker-logo"), Attr: "alt"},
			},
			scraper.FieldDeveloper: {
				{Selector: tid("property-card-developer")},
			},
			scraper.FieldLink: {
				{Selector: `a[data-testid="property-card-link"]`, Attr: "href"},
				{Selector: "a[href]", Attr: "href"},
			},
			scraper.FieldDescription: {
				{Selector: tid("property-card-description")},
			},
			scraper.FieldListed: {
				{Selector: tid("property-card-listed-date")},
				{Selector: "p", Pattern: `(?i)(listed\s.+ago)`},
			},
		},
	}
}
