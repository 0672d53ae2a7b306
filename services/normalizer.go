package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"listing-scraper/models"
	"listing-scraper/utils"
)

// SqmToSqft converts square meters to square feet.
const SqmToSqft = 10.764

var (
	// leadingNumberRegexp captures the first number, thousands separators allowed
	leadingNumberRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	// sqmRegexp detects metric area units
	sqmRegexp = regexp.MustCompile(`(?i)(sq\.?\s*m(?:eters?|etres?|t)?\b|sqm\b|m²|m2\b|square\s+met(?:er|re)s?)`)
	// sqftRegexp detects imperial area units
	sqftRegexp = regexp.MustCompile(`(?i)(sq\.?\s*f(?:ee)?t\b|sqft\b|ft²|ft2\b|square\s+f(?:ee|oo)t)`)
	// nextDigitRegexp finds where the next number starts
	nextDigitRegexp = regexp.MustCompile(`\d`)
	// studioRegexp matches "studio" in any case
	studioRegexp = regexp.MustCompile(`(?i)\bstudio\b`)
	// roomsRegexp captures a leading room count such as "3", "5+" or "2 Beds"
	roomsRegexp = regexp.MustCompile(`\d+`)
)

// Normalizer turns RawRecords into CanonicalListings.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts one raw record. Fields that cannot be parsed come back
// nil; they never default to zero, and each one is reported as a
// malformed-content diagnostic. project names the listing; the record's own
// title is used only when project is empty.
func (n *Normalizer) Normalize(r models.RawRecord, project string) (models.CanonicalListing, []models.Diagnostic) {
	l := models.CanonicalListing{
		Project:      project,
		PropertyType: normaliseOptional(r.PropertyType),
		Price:        ParsePrice(models.Deref(r.PriceText)),
		AreaSqft:     ParseArea(models.Deref(r.AreaText)),
		Bedrooms:     ParseRooms(models.Deref(r.BedroomsText)),
		Bathrooms:    ParseRooms(models.Deref(r.BathroomsText)),
		Location:     normaliseOptional(r.Location),
		Developer:    normaliseOptional(r.Developer),
		AgentName:    normaliseOptional(r.Agent),
		PropertyURL:  normaliseOptional(r.Link),
		Description:  describe(r),
		Page:         r.Page,
	}
	if project == "" && r.Title != nil {
		l.Project = normaliseText(*r.Title)
	}
	l.PricePerSqft = PricePerSqft(l.Price, l.AreaSqft)

	var diags []models.Diagnostic
	check := func(field string, text *string, parsed bool) {
		if text == nil || parsed {
			return
		}
		n.logger.Debug("[normalizer] unparseable %s %q", field, *text)
		diags = append(diags, models.Diagnostic{
			Stage:  models.StageNormalize,
			Kind:   models.MalformedContentError,
			Page:   r.Page,
			URL:    models.Deref(r.Link),
			Reason: fmt.Sprintf("%s: cannot parse %q", field, *text),
		})
	}
	check("price", r.PriceText, l.Price != nil)
	check("area", r.AreaText, l.AreaSqft != nil)
	check("bedrooms", r.BedroomsText, l.Bedrooms != nil)
	check("bathrooms", r.BathroomsText, l.Bathrooms != nil)
	return l, diags
}

// NormalizeAll converts a page of records, stamping their position on the
// page, and collects the field-level diagnostics of every record.
func (n *Normalizer) NormalizeAll(raw []models.RawRecord, project string) ([]models.CanonicalListing, []models.Diagnostic) {
	out := make([]models.CanonicalListing, 0, len(raw))
	var diags []models.Diagnostic
	for i, r := range raw {
		l, d := n.Normalize(r, project)
		l.Position = i + 1
		out = append(out, l)
		diags = append(diags, d...)
	}
	return out, diags
}

// ParsePrice strips everything but digits and parses the remainder.
// Examples:
//
//	"AED 1,900,000" → 1900000
//	"Ask for price" → nil
func ParsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	// drop fractional fils so "1,250.50" does not become 125050
	if m := leadingNumberRegexp.FindString(raw); m != "" {
		if i := strings.IndexByte(m, '.'); i >= 0 {
			raw = strings.Replace(raw, m, m[:i], 1)
		}
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return nil
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseArea reads the leading number and converts square meters to square
// feet. The unit written right after the number decides; otherwise any
// imperial unit in the text wins over a metric one, and text without a
// recognised unit is taken as square feet.
func ParseArea(raw string) *float64 {
	loc := leadingNumberRegexp.FindStringIndex(raw)
	if loc == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw[loc[0]:loc[1]], ",", ""), 64)
	if err != nil {
		return nil
	}
	if isMetric(raw, loc[1]) {
		v *= SqmToSqft
	}
	return &v
}

func isMetric(raw string, numberEnd int) bool {
	unit := raw[numberEnd:]
	if next := nextDigitRegexp.FindStringIndex(unit); next != nil {
		unit = unit[:next[0]]
	}
	switch {
	case sqmRegexp.MatchString(unit):
		return true
	case sqftRegexp.MatchString(unit), sqftRegexp.MatchString(raw):
		return false
	}
	return sqmRegexp.MatchString(raw)
}

// ParseRooms maps free text to a room category. "Studio" in any form is
// studio, counts at or above five collapse into 5+.
func ParseRooms(raw string) *models.RoomCount {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if studioRegexp.MatchString(raw) {
		c := models.Studio
		return &c
	}
	m := roomsRegexp.FindString(raw)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	c := models.RoomCountFromInt(n)
	return &c
}

// PricePerSqft is price/area when both are known and area is positive.
func PricePerSqft(price, area *float64) *float64 {
	if price == nil || area == nil || *area <= 0 {
		return nil
	}
	v := *price / *area
	return &v
}

func describe(r models.RawRecord) *string {
	switch {
	case r.Description != nil && r.ListedText != nil:
		return models.Str(normaliseText(*r.Description) + " · " + normaliseText(*r.ListedText))
	case r.Description != nil:
		return normaliseOptional(r.Description)
	default:
		return normaliseOptional(r.ListedText)
	}
}

func normaliseOptional(s *string) *string {
	if s == nil {
		return nil
	}
	return models.Str(normaliseText(*s))
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
