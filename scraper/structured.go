package scraper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"listing-scraper/models"
	"listing-scraper/utils"
)

const maxJSONDepth = 8

// listingTypes are schema.org types that always describe a property.
var listingTypes = map[string]bool{
	"RealEstateListing":     true,
	"Apartment":             true,
	"House":                 true,
	"SingleFamilyResidence": true,
	"Residence":             true,
	"Accommodation":         true,
	"ApartmentComplex":      true,
}

// offerTypes only count as listings when they carry a price.
var offerTypes = map[string]bool{
	"Product": true,
	"Offer":   true,
	"Place":   true,
}

// StructuredDataExtractor reads listings from JSON-LD blocks embedded in the
// page. It does not depend on the visual layout.
type StructuredDataExtractor struct {
	logger *utils.Logger
}

func NewStructuredDataExtractor(logger *utils.Logger) *StructuredDataExtractor {
	return &StructuredDataExtractor{logger: logger}
}

func (e *StructuredDataExtractor) Name() string { return "structured" }

func (e *StructuredDataExtractor) Extract(doc *goquery.Document, page int) ([]models.RawRecord, []models.Diagnostic) {
	var records []models.RawRecord
	var diags []models.Diagnostic

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		body := strings.TrimSpace(s.Text())
		if body == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			diags = append(diags, models.Diagnostic{
				Stage:  models.StageExtract,
				Kind:   models.MalformedContentError,
				Page:   page,
				URL:    docURL(doc),
				Reason: fmt.Sprintf("ld+json block %d: %v", i, err),
			})
			return
		}
		e.walk(v, page, 0, &records)
	})

	for i := range records {
		if records[i].Link != nil {
			records[i].Link = models.Str(resolveLink(doc, *records[i].Link))
		}
	}

	e.logger.Debug("[structured] page %d: %d records", page, len(records))
	return records, diags
}

func (e *StructuredDataExtractor) walk(v any, page, depth int, out *[]models.RawRecord) {
	if depth > maxJSONDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			e.walk(item, page, depth+1, out)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			e.walk(graph, page, depth+1, out)
			return
		}
		types := typeNames(t["@type"])
		if types["ItemList"] {
			e.walk(t["itemListElement"], page, depth+1, out)
			return
		}
		if types["ListItem"] {
			if item, ok := t["item"]; ok {
				e.walk(item, page, depth+1, out)
			}
			return
		}
		if isListing(t, types) {
			*out = append(*out, mapListing(t, types, page))
		}
	}
}

func isListing(obj map[string]any, types map[string]bool) bool {
	for name := range types {
		if listingTypes[name] {
			return true
		}
	}
	for name := range types {
		if offerTypes[name] {
			return priceText(obj) != ""
		}
	}
	return false
}

func mapListing(obj map[string]any, types map[string]bool, page int) models.RawRecord {
	// RealEstateListing usually wraps the residence in mainEntity or about
	inner := firstMap(obj, "mainEntity", "about", "itemOffered")

	rec := models.RawRecord{
		Title:         models.Str(firstString(obj, "name", "headline")),
		PriceText:     models.Str(priceText(obj)),
		Location:      models.Str(locationText(obj)),
		PropertyType:  models.Str(propertyType(obj, types)),
		BedroomsText:  models.Str(quantity(obj, "numberOfBedrooms", "numberOfRooms")),
		BathroomsText: models.Str(quantity(obj, "numberOfBathroomsTotal", "numberOfFullBathrooms")),
		AreaText:      models.Str(floorSize(obj)),
		Agent:         models.Str(agentName(obj)),
		Developer:     models.Str(nestedName(obj, "brand", "manufacturer", "developer")),
		Link:          models.Str(linkText(obj)),
		Description:   models.Str(firstString(obj, "description")),
		ListedText:    models.Str(listedText(obj)),
		Page:          page,
		Strategy:      "structured",
	}
	if inner != nil {
		fillMissing(&rec, mapListing(inner, typeNames(inner["@type"]), page))
	}
	return rec
}

func fillMissing(dst *models.RawRecord, src models.RawRecord) {
	pairs := []struct{ d, s **string }{
		{&dst.Title, &src.Title},
		{&dst.PriceText, &src.PriceText},
		{&dst.Location, &src.Location},
		{&dst.PropertyType, &src.PropertyType},
		{&dst.BedroomsText, &src.BedroomsText},
		{&dst.BathroomsText, &src.BathroomsText},
		{&dst.AreaText, &src.AreaText},
		{&dst.Agent, &src.Agent},
		{&dst.Developer, &src.Developer},
		{&dst.Link, &src.Link},
		{&dst.Description, &src.Description},
		{&dst.ListedText, &src.ListedText},
	}
	for _, p := range pairs {
		if *p.d == nil {
			*p.d = *p.s
		}
	}
}

func typeNames(v any) map[string]bool {
	out := make(map[string]bool)
	switch t := v.(type) {
	case string:
		out[trimSchema(t)] = true
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok {
				out[trimSchema(s)] = true
			}
		}
	}
	return out
}

func trimSchema(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		// QuantitativeValue and friends
		if val, ok := t["value"]; ok {
			return scalar(val)
		}
		if name, ok := t["name"]; ok {
			return scalar(name)
		}
	case []any:
		if len(t) > 0 {
			return scalar(t[0])
		}
	}
	return ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalar(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstMap(obj map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		switch t := obj[k].(type) {
		case map[string]any:
			return t
		case []any:
			if len(t) > 0 {
				if m, ok := t[0].(map[string]any); ok {
					return m
				}
			}
		}
	}
	return nil
}

func nestedName(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch t := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case map[string]any:
			if s := scalar(t["name"]); s != "" {
				return s
			}
		}
	}
	return ""
}

func priceText(obj map[string]any) string {
	offer := firstMap(obj, "offers", "priceSpecification")
	src := obj
	if offer != nil {
		src = offer
		if spec := firstMap(offer, "priceSpecification"); spec != nil && scalar(offer["price"]) == "" {
			src = spec
		}
	}
	price := scalar(src["price"])
	if price == "" {
		price = scalar(src["lowPrice"])
	}
	if price == "" {
		return ""
	}
	if cur := scalar(src["priceCurrency"]); cur != "" {
		return cur + " " + price
	}
	return price
}

func locationText(obj map[string]any) string {
	switch a := obj["address"].(type) {
	case string:
		return strings.TrimSpace(a)
	case map[string]any:
		var parts []string
		for _, k := range []string{"streetAddress", "addressLocality", "addressRegion"} {
			if s := scalar(a[k]); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	return nestedName(obj, "contentLocation", "containedInPlace", "location")
}

func propertyType(obj map[string]any, types map[string]bool) string {
	if s := firstString(obj, "accommodationCategory", "additionalType", "category"); s != "" {
		return trimSchema(s)
	}
	for _, name := range []string{"Apartment", "House", "SingleFamilyResidence", "ApartmentComplex"} {
		if types[name] {
			if name == "SingleFamilyResidence" {
				return "House"
			}
			return name
		}
	}
	return ""
}

func quantity(obj map[string]any, keys ...string) string {
	return firstString(obj, keys...)
}

func floorSize(obj map[string]any) string {
	fs, ok := obj["floorSize"]
	if !ok {
		return ""
	}
	m, isMap := fs.(map[string]any)
	if !isMap {
		return scalar(fs)
	}
	value := scalar(m["value"])
	if value == "" {
		return ""
	}
	unit := strings.ToUpper(firstString(m, "unitCode", "unitText"))
	switch {
	case unit == "MTK" || strings.Contains(unit, "M2") || strings.Contains(unit, "SQM") || strings.Contains(unit, "MET"):
		return value + " sqm"
	default:
		return value + " sqft"
	}
}

func agentName(obj map[string]any) string {
	if offer := firstMap(obj, "offers"); offer != nil {
		if s := nestedName(offer, "seller", "offeredBy"); s != "" {
			return s
		}
	}
	return nestedName(obj, "broker", "seller", "offeredBy", "provider", "author")
}

func linkText(obj map[string]any) string {
	if s := firstString(obj, "url"); s != "" {
		return s
	}
	if id := scalar(obj["@id"]); strings.HasPrefix(id, "http") || strings.HasPrefix(id, "/") {
		return id
	}
	return ""
}

func listedText(obj map[string]any) string {
	if s := firstString(obj, "datePosted", "datePublished"); s != "" {
		return "Listed " + s
	}
	return ""
}

func docURL(doc *goquery.Document) string {
	if doc.Url == nil {
		return ""
	}
	return doc.Url.String()
}

// resolveLink makes href absolute against the document URL when possible.
func resolveLink(doc *goquery.Document, href string) string {
	href = strings.TrimSpace(href)
	if doc.Url == nil || href == "" {
		return href
	}
	u, err := doc.Url.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}
