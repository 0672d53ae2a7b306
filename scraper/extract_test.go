package scraper

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-scraper/models"
	"listing-scraper/utils"
)

func parseDoc(t *testing.T, html, pageURL string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		require.NoError(t, err)
		doc.Url = u
	}
	return doc
}

func testRules(t *testing.T) RuleSet {
	t.Helper()
	rs := RuleSet{
		Cards: []string{`article[data-testid="property-card"]`, "li.card"},
		Fields: map[Field]Chain{
			FieldTitle:        {{Selector: "h2"}},
			FieldPrice:        {{Selector: ".price"}, {Selector: "[data-price]", Attr: "data-price"}},
			FieldLocation:     {{Selector: ".location"}},
			FieldPropertyType: {{Selector: ".type"}},
			FieldBedrooms:     {{Selector: ".beds"}},
			FieldBathrooms:    {{Selector: ".baths"}},
			FieldArea:         {{Selector: ".area"}},
			FieldAgent:        {{Selector: ".agent"}},
			FieldLink:         {{Selector: "a", Attr: "href"}},
			FieldListed:       {{Selector: ".listed", Pattern: `(?i)listed\s+(.+)`}},
		},
	}
	require.NoError(t, rs.Compile())
	return rs
}

func newLayout(t *testing.T, rs RuleSet) *LayoutExtractor {
	t.Helper()
	e, err := NewLayoutExtractor(rs, utils.NewDiscardLogger())
	require.NoError(t, err)
	return e
}

const jsonLDPage = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"BreadcrumbList"}</script>
<script type="application/ld+json">{ not json </script>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"ItemList","itemListElement":[
 {"@type":"ListItem","position":1,"item":{
   "@type":"RealEstateListing","name":"2BR in Safa Two","url":"/en/plp/buy/apartment-1.html",
   "datePosted":"2024-05-01",
   "offers":{"@type":"Offer","price":2700000,"priceCurrency":"AED","seller":{"@type":"RealEstateAgent","name":"Jane Broker"}},
   "mainEntity":{"@type":"Apartment","numberOfBedrooms":2,"numberOfBathroomsTotal":3,
     "floorSize":{"@type":"QuantitativeValue","value":120,"unitCode":"MTK"},
     "address":{"@type":"PostalAddress","streetAddress":"Safa Two","addressLocality":"Business Bay","addressRegion":"Dubai"}}
 }},
 {"@type":"ListItem","position":2,"item":{
   "@type":"Product","name":"Studio","offers":{"price":"1,900,000","priceCurrency":"AED"},
   "brand":{"@type":"Brand","name":"Damac"}
 }},
 {"@type":"ListItem","position":3,"item":{"@type":"Place","name":"Not a listing"}}
]}
</script></head><body></body></html>`

func TestStructuredExtractor(t *testing.T) {
	doc := parseDoc(t, jsonLDPage, "https://www.propertyfinder.ae/en/search?q=x")
	records, diags := NewStructuredDataExtractor(utils.NewDiscardLogger()).Extract(doc, 1)

	require.Len(t, records, 2)
	require.Len(t, diags, 1)
	assert.Equal(t, models.MalformedContentError, diags[0].Kind)

	first := records[0]
	assert.Equal(t, "2BR in Safa Two", models.Deref(first.Title))
	assert.Equal(t, "AED 2700000", models.Deref(first.PriceText))
	assert.Equal(t, "2", models.Deref(first.BedroomsText))
	assert.Equal(t, "3", models.Deref(first.BathroomsText))
	assert.Equal(t, "120 sqm", models.Deref(first.AreaText))
	assert.Equal(t, "Safa Two, Business Bay, Dubai", models.Deref(first.Location))
	assert.Equal(t, "Apartment", models.Deref(first.PropertyType))
	assert.Equal(t, "Jane Broker", models.Deref(first.Agent))
	assert.Equal(t, "https://www.propertyfinder.ae/en/plp/buy/apartment-1.html", models.Deref(first.Link))
	assert.Equal(t, "Listed 2024-05-01", models.Deref(first.ListedText))
	assert.Equal(t, "structured", first.Strategy)

	second := records[1]
	assert.Equal(t, "AED 1,900,000", models.Deref(second.PriceText))
	assert.Equal(t, "Damac", models.Deref(second.Developer))
	assert.Nil(t, second.AreaText)
}

func TestStructuredExtractorGraph(t *testing.T) {
	html := `<script type="application/ld+json">{"@graph":[{"@type":["Residence"],"name":"Villa","offers":{"price":5000000}}]}</script>`
	records, diags := NewStructuredDataExtractor(utils.NewDiscardLogger()).Extract(parseDoc(t, html, ""), 2)

	require.Len(t, records, 1)
	assert.Empty(t, diags)
	assert.Equal(t, "5000000", models.Deref(records[0].PriceText))
	assert.Equal(t, 2, records[0].Page)
}

func cardHTML(title, price, beds, area string) string {
	return `<article data-testid="property-card"><a href="/en/plp/` + strings.ToLower(strings.ReplaceAll(title, " ", "-")) + `.html">` +
		`<h2>` + title + `</h2></a><span class="price">` + price + `</span>` +
		`<span class="beds">` + beds + `</span><span class="area">` + area + `</span></article>`
}

func TestLayoutExtractorFiveCards(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, p := range []string{"AED 1,000,000", "AED 1,100,000", "AED 1,200,000", "AED 1,300,000", "AED 1,400,000"} {
		b.WriteString(cardHTML("Unit "+string(rune('A'+i)), p, "2", "1,000 sqft"))
	}
	b.WriteString("</body></html>")

	doc := parseDoc(t, b.String(), "https://www.propertyfinder.ae/en/search?page=1")
	records, diags := newLayout(t, testRules(t)).Extract(doc, 1)

	require.Len(t, records, 5)
	assert.Empty(t, diags)
	assert.Equal(t, "Unit A", models.Deref(records[0].Title))
	assert.Equal(t, "AED 1,400,000", models.Deref(records[4].PriceText))
	assert.Equal(t, "https://www.propertyfinder.ae/en/plp/unit-a.html", models.Deref(records[0].Link))
	assert.Equal(t, "layout", records[0].Strategy)
}

func TestLayoutExtractorPartialAndFallback(t *testing.T) {
	html := `<ul>
<li class="card"><h2>No price here</h2><p>3 Beds · 2 Baths · 1,450 sq.ft</p></li>
<li class="card"><span data-price="AED 990,000"></span><span class="listed">Listed 3 days ago</span></li>
<li class="card">   </li>
</ul>`
	records, diags := newLayout(t, testRules(t)).Extract(parseDoc(t, html, ""), 4)

	require.Len(t, records, 2)
	require.Len(t, diags, 1)
	assert.Equal(t, models.MalformedContentError, diags[0].Kind)
	assert.Equal(t, 4, diags[0].Page)

	first := records[0]
	assert.Nil(t, first.PriceText)
	assert.Equal(t, "3", models.Deref(first.BedroomsText))
	assert.Equal(t, "2", models.Deref(first.BathroomsText))
	assert.Equal(t, "1,450 sq.ft", models.Deref(first.AreaText))

	second := records[1]
	assert.Nil(t, second.Title)
	assert.Equal(t, "AED 990,000", models.Deref(second.PriceText))
	assert.Equal(t, "3 days ago", models.Deref(second.ListedText))
}

func TestLayoutExtractorNoCards(t *testing.T) {
	records, diags := newLayout(t, testRules(t)).Extract(parseDoc(t, "<p>nothing</p>", ""), 1)
	assert.Empty(t, records)
	assert.Empty(t, diags)
}

func TestExtractPagePrefersStructured(t *testing.T) {
	html := jsonLDPage[:strings.Index(jsonLDPage, "<body>")] + "<body>" + cardHTML("Card", "AED 1", "1", "1 sqft") + "</body></html>"
	doc := parseDoc(t, html, "")
	extractors := []Extractor{
		NewStructuredDataExtractor(utils.NewDiscardLogger()),
		newLayout(t, testRules(t)),
	}

	records, strategy, _ := ExtractPage(doc, 1, extractors)
	assert.Equal(t, "structured", strategy)
	assert.Len(t, records, 2)

	records, strategy, _ = ExtractPage(parseDoc(t, cardHTML("Card", "AED 1", "1", "1 sqft"), ""), 1, extractors)
	assert.Equal(t, "layout", strategy)
	assert.Len(t, records, 1)

	records, strategy, _ = ExtractPage(parseDoc(t, "<p></p>", ""), 1, extractors)
	assert.Equal(t, StrategyNone, strategy)
	assert.Empty(t, records)
}

func TestLoadRuleSetOverrides(t *testing.T) {
	base := testRules(t)
	yml := []byte(`
cards:
  - div.listing
fields:
  price:
    - selector: ".cost"
      pattern: 'AED\s*([\d,]+)'
`)
	rs, err := mergeRuleYAML(yml, base.Clone())
	require.NoError(t, err)
	assert.Equal(t, []string{"div.listing"}, rs.Cards)
	require.Len(t, rs.Fields[FieldPrice], 1)
	assert.Equal(t, ".cost", rs.Fields[FieldPrice][0].Selector)
	assert.Equal(t, base.Fields[FieldTitle], rs.Fields[FieldTitle])
	// defaults untouched
	assert.Equal(t, ".price", base.Fields[FieldPrice][0].Selector)

	doc := parseDoc(t, `<div class="listing"><span class="cost">Price: AED 2,500,000</span></div>`, "")
	records, _ := newLayout(t, rs).Extract(doc, 1)
	require.Len(t, records, 1)
	assert.Equal(t, "2,500,000", models.Deref(records[0].PriceText))

	_, err = mergeRuleYAML([]byte("fields:\n  colour:\n    - selector: x\n"), base.Clone())
	assert.Error(t, err)
	_, err = mergeRuleYAML([]byte("fields:\n  price:\n    - selector: x\n      pattern: '('\n"), base.Clone())
	assert.Error(t, err)
}

func TestLayoutExtractorAdjacentElements(t *testing.T) {
	rs := RuleSet{
		Cards: []string{"div.card"},
		Fields: map[Field]Chain{
			FieldPrice: {{Pattern: `(?i)(AED\s*[\d,]+)`}},
		},
	}
	html := `<div class="card"><span>AED 1,900,000</span><span>3 Beds</span><span>2 Baths</span><span>1,450 sqft</span></div>`

	records, diags := newLayout(t, rs).Extract(parseDoc(t, html, ""), 1)

	require.Len(t, records, 1)
	assert.Empty(t, diags)
	r := records[0]
	assert.Equal(t, "AED 1,900,000", models.Deref(r.PriceText))
	assert.Equal(t, "3", models.Deref(r.BedroomsText))
	assert.Equal(t, "2", models.Deref(r.BathroomsText))
	assert.Equal(t, "1,450 sqft", models.Deref(r.AreaText))
}

func TestLayoutExtractorBareStudio(t *testing.T) {
	rs := RuleSet{Cards: []string{"div.card"}, Fields: map[Field]Chain{}}
	html := `<div class="card"><b>Studio</b><i>1 Bath</i><i>410 sqft</i></div>`

	records, _ := newLayout(t, rs).Extract(parseDoc(t, html, ""), 1)

	require.Len(t, records, 1)
	assert.Equal(t, "Studio", models.Deref(records[0].BedroomsText))
	assert.Equal(t, "1", models.Deref(records[0].BathroomsText))
}

func TestNewLayoutExtractorCompilesRules(t *testing.T) {
	rs := RuleSet{
		Cards:  []string{"div.card"},
		Fields: map[Field]Chain{FieldPrice: {{Pattern: `AED\s*([\d,]+)`}}},
	}
	html := `<div class="card"><h2>Unit 12</h2><p>AED 1,900,000</p><p>2 Beds</p></div>`

	records, _ := newLayout(t, rs).Extract(parseDoc(t, html, ""), 1)
	require.Len(t, records, 1)
	assert.Equal(t, "1,900,000", models.Deref(records[0].PriceText))
	// the caller's rules stay uncompiled
	assert.Nil(t, rs.Fields[FieldPrice][0].re)

	_, err := NewLayoutExtractor(RuleSet{Cards: []string{"div"}, Fields: map[Field]Chain{FieldPrice: {{Pattern: "("}}}}, utils.NewDiscardLogger())
	assert.Error(t, err)
	_, err = NewLayoutExtractor(RuleSet{}, utils.NewDiscardLogger())
	assert.Error(t, err)
}

func TestUncompiledPatternMatchesNothing(t *testing.T) {
	r := Rule{Pattern: `AED\s*([\d,]+)`}
	card := parseDoc(t, `<div><p>AED 1,900,000</p></div>`, "").Find("div")

	_, ok := r.Apply(card)
	assert.False(t, ok)
}
