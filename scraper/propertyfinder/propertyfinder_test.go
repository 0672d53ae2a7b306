package propertyfinder

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-scraper/config"
	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/utils"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestPageURL(t *testing.T) {
	minPrice, maxPrice := 1000000.0, 3500000.0
	beds := models.Two
	s := &models.SearchSession{
		Query:        "Damac Safa Two",
		PropertyType: "Apartment",
		MinPrice:     &minPrice,
		MaxPrice:     &maxPrice,
		Bedrooms:     &beds,
	}
	site := NewSite("https://www.propertyfinder.ae/")

	u, err := url.Parse(site.PageURL(s, 3))
	require.NoError(t, err)

	assert.Equal(t, "/en/search", u.Path)
	q := u.Query()
	assert.Equal(t, "Damac Safa Two", q.Get("q"))
	assert.Equal(t, "1", q.Get("c"))
	assert.Equal(t, "1", q.Get("t"))
	assert.Equal(t, "1000000", q.Get("pf"))
	assert.Equal(t, "3500000", q.Get("pt"))
	assert.Equal(t, "2", q.Get("bdr[]"))
	assert.Equal(t, "3", q.Get("page"))

	first, _ := url.Parse(site.PageURL(&models.SearchSession{Query: "x"}, 1))
	assert.Empty(t, first.Query().Get("page"))
	assert.Empty(t, first.Query().Get("t"))
}

func TestNoResults(t *testing.T) {
	site := NewSite("")
	assert.True(t, site.NoResults(doc(t, `<div data-testid="no-results"></div>`)))
	assert.True(t, site.NoResults(doc(t, `<h1>No properties found for "zzz"</h1>`)))
	assert.False(t, site.NoResults(doc(t, `<h1>1,204 properties for sale</h1>`)))
}

func TestTotalAvailable(t *testing.T) {
	site := NewSite("")

	n, ok := site.TotalAvailable(doc(t, `<h1 data-testid="page-title">1,204 properties for sale in Dubai</h1>`))
	assert.True(t, ok)
	assert.Equal(t, 1204, n)

	next := `<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"searchResult":{"meta":{"page":1,"total_count":37},"listings":[]}}}}</script>`
	n, ok = site.TotalAvailable(doc(t, next))
	assert.True(t, ok)
	assert.Equal(t, 37, n)

	_, ok = site.TotalAvailable(doc(t, `<h1>Apartments</h1>`))
	assert.False(t, ok)
}

const card = `<article data-testid="property-card">
  <a data-testid="property-card-link" href="/en/plp/buy/apartment-for-sale-dubai-%d.html">
    <h2 data-testid="property-card-title">%s</h2>
  </a>
  <p data-testid="property-card-type">Apartment</p>
  <p data-testid="property-card-price">%s</p>
  <p data-testid="property-card-location">Safa Two, Business Bay, Dubai</p>
  <p data-testid="property-card-spec-bedroom">%s</p>
  <p data-testid="property-card-spec-bathroom">2</p>
  <p data-testid="property-card-spec-area">%s</p>
  <img data-testid="property-card-broker-logo" alt="Driven Properties">
  <p>Listed 2 days ago</p>
</article>`

func resultsPage(total int, cards ...string) string {
	return fmt.Sprintf(`<html><body><h1 data-testid="page-title">%d properties for sale</h1>%s</body></html>`,
		total, strings.Join(cards, "\n"))
}

func TestDefaultRulesExtractCard(t *testing.T) {
	rules, err := scraper.LoadRuleSet("", DefaultRules())
	require.NoError(t, err)

	html := resultsPage(1, fmt.Sprintf(card, 1, "Luxury 1BR | Safa Two", "1,900,000 AED", "1", "753 sqft"))
	layout, err := scraper.NewLayoutExtractor(rules, utils.NewDiscardLogger())
	require.NoError(t, err)
	records, diags := layout.Extract(doc(t, html), 1)

	require.Len(t, records, 1)
	assert.Empty(t, diags)
	r := records[0]
	assert.Equal(t, "Luxury 1BR | Safa Two", models.Deref(r.Title))
	assert.Equal(t, "1,900,000 AED", models.Deref(r.PriceText))
	assert.Equal(t, "Driven Properties", models.Deref(r.Agent))
	assert.Equal(t, "Listed 2 days ago", models.Deref(r.ListedText))
	assert.Equal(t, "/en/plp/buy/apartment-for-sale-dubai-1.html", models.Deref(r.Link))
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		BaseURL:          baseURL,
		MaxPages:         5,
		MaxRetries:       2,
		RetryBaseDelayMs: 1,
		RequestTimeout:   5 * time.Second,
	}
}

func TestSessionAgainstServer(t *testing.T) {
	pages := map[string]string{
		"": resultsPage(3,
			fmt.Sprintf(card, 1, "Safa Two 1BR", "1,900,000 AED", "1", "753 sqft"),
			fmt.Sprintf(card, 2, "Safa Two 2BR", "2,700,000 AED", "2", "1,294 sqft"),
		),
		"2": resultsPage(3,
			fmt.Sprintf(card, 3, "Safa Two 3BR", "3,200,000 AED", "3", "1,399 sqft"),
		),
	}
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		requested = append(requested, page)
		body, ok := pages[page]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	rules, err := scraper.LoadRuleSet("", DefaultRules())
	require.NoError(t, err)
	c, err := NewController(cfg, scraper.NewHTTPTransport(cfg.RequestTimeout), rules, utils.NewDiscardLogger())
	require.NoError(t, err)

	res := c.Run(context.Background(), models.NewSearchSession("Damac Safa Two", cfg.MaxPages))

	assert.Equal(t, models.ReasonFullyFetched, res.Diagnostics.TerminalReason)
	assert.Equal(t, []string{"", "2"}, requested)
	require.Len(t, res.Listings, 3)

	first := res.Listings[0]
	assert.Equal(t, "Damac Safa Two", first.Project)
	assert.Equal(t, 1900000.0, *first.Price)
	assert.Equal(t, 753.0, *first.AreaSqft)
	assert.Equal(t, models.One, *first.Bedrooms)
	assert.Equal(t, srv.URL+"/en/plp/buy/apartment-for-sale-dubai-1.html", *first.PropertyURL)
	assert.Equal(t, "Listed 2 days ago", *first.Description)

	assert.Equal(t, 3, res.Summary.Count)
	assert.Equal(t, 3, res.Summary.ByAgent["Driven Properties"])
	assert.Equal(t, "layout", res.Diagnostics.Strategies[2])
}

func TestSessionAccessDenied(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	rules, err := scraper.LoadRuleSet("", DefaultRules())
	require.NoError(t, err)
	c, err := NewController(cfg, scraper.NewHTTPTransport(cfg.RequestTimeout), rules, utils.NewDiscardLogger())
	require.NoError(t, err)

	res := c.Run(context.Background(), models.NewSearchSession("anything", 3))

	assert.Equal(t, models.ReasonAccessDenied, res.Diagnostics.TerminalReason)
	assert.Equal(t, 1, calls)
	assert.Empty(t, res.Listings)
}

func TestNewRejectsBadRulesFile(t *testing.T) {
	cfg := testConfig("")
	cfg.SelectorRulesPath = "does-not-exist.yaml"

	_, err := New(cfg, utils.NewDiscardLogger())
	assert.Error(t, err)
}

func TestDefaultRulesAdjacentSpans(t *testing.T) {
	layout, err := scraper.NewLayoutExtractor(DefaultRules(), utils.NewDiscardLogger())
	require.NoError(t, err)

	html := `<article data-testid="property-card"><span>AED 1,900,000</span><span>3 Beds</span><span>2 Baths</span><span>1,450 sqft</span></article>`
	records, _ := layout.Extract(doc(t, html), 1)

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "AED 1,900,000", models.Deref(r.PriceText))
	assert.Equal(t, "3", models.Deref(r.BedroomsText))
	assert.Equal(t, "2", models.Deref(r.BathroomsText))
	assert.Equal(t, "1,450 sqft", models.Deref(r.AreaText))
}

func TestRunBoundsPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "" {
			_, _ = w.Write([]byte(resultsPage(100, fmt.Sprintf(card, 1, "A", "AED 1,000,000", "1", "500 sqft"))))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPages = 0
	pf, err := New(cfg, utils.NewDiscardLogger())
	require.NoError(t, err)
	defer pf.Close()

	res := pf.Run(context.Background(), models.NewSearchSession("A", 0))

	assert.Equal(t, models.ReasonPageLimit, res.Diagnostics.TerminalReason)
	assert.Equal(t, 1, calls)
	assert.Len(t, res.Listings, 1)
}
