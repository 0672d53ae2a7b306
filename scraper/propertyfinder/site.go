package propertyfinder

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"listing-scraper/models"
)

// DefaultBaseURL is the public UAE site.
const DefaultBaseURL = "https://www.propertyfinder.ae"

// categoryBuy selects sale listings in the search query.
const categoryBuy = "1"

// propertyTypeIDs maps the type filter to the site's numeric ids.
var propertyTypeIDs = map[string]string{
	"apartment":       "1",
	"villa":           "35",
	"townhouse":       "22",
	"penthouse":       "20",
	"duplex":          "24",
	"hotel apartment": "45",
}

var (
	totalCountRegexp = regexp.MustCompile(`(?i)([\d,]+)\s+(?:properties|results|listings)`)
	noResultsMarkers = []string{
		`[data-testid="no-results"]`,
		`[data-testid="empty-state"]`,
		".no-results",
	}
)

// Site addresses Property Finder search pages and reads their page signals.
type Site struct {
	BaseURL string
}

func NewSite(baseURL string) *Site {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Site{BaseURL: strings.TrimRight(baseURL, "/")}
}

// PageURL builds the search URL for one results page of s.
func (site *Site) PageURL(s *models.SearchSession, page int) string {
	q := url.Values{}
	q.Set("c", categoryBuy)
	if s.Query != "" {
		q.Set("q", s.Query)
	}
	if id, ok := propertyTypeIDs[strings.ToLower(strings.TrimSpace(s.PropertyType))]; ok {
		q.Set("t", id)
	}
	if s.MinPrice != nil {
		q.Set("pf", strconv.FormatFloat(*s.MinPrice, 'f', 0, 64))
	}
	if s.MaxPrice != nil {
		q.Set("pt", strconv.FormatFloat(*s.MaxPrice, 'f', 0, 64))
	}
	if s.Bedrooms != nil {
		q.Set("bdr[]", strconv.Itoa(int(*s.Bedrooms)))
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return site.BaseURL + "/en/search?" + q.Encode()
}

// NoResults reports whether the page shows the empty-search state.
func (site *Site) NoResults(doc *goquery.Document) bool {
	for _, sel := range noResultsMarkers {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	heading := strings.ToLower(doc.Find("h1").First().Text())
	return strings.Contains(heading, "no properties") || strings.Contains(heading, "no results")
}

// TotalAvailable reads the result count from the embedded page data, or
// from the results heading.
func (site *Site) TotalAvailable(doc *goquery.Document) (int, bool) {
	if raw := doc.Find("script#__NEXT_DATA__").Text(); raw != "" {
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err == nil {
			if n, ok := findCount(data, 0); ok {
				return n, true
			}
		}
	}

	for _, sel := range []string{`[data-testid="page-title"]`, `[data-testid="search-results-count"]`, "h1"} {
		text := doc.Find(sel).First().Text()
		if m := totalCountRegexp.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

var countKeys = []string{"total_count", "totalCount", "total"}

// findCount walks decoded page data looking for a result count under
// a "meta" object.
func findCount(v any, depth int) (int, bool) {
	if depth > 8 {
		return 0, false
	}
	switch t := v.(type) {
	case map[string]any:
		if meta, ok := t["meta"].(map[string]any); ok {
			for _, k := range countKeys {
				if f, ok := meta[k].(float64); ok {
					return int(f), true
				}
			}
		}
		for _, child := range t {
			if n, ok := findCount(child, depth+1); ok {
				return n, true
			}
		}
	case []any:
		for _, child := range t {
			if n, ok := findCount(child, depth+1); ok {
				return n, true
			}
		}
	}
	return 0, false
}
