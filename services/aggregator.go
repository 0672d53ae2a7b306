package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"listing-scraper/models"
	"listing-scraper/utils"
)

const topAgentsLimit = 5

// Aggregator collects normalized pages in arrival order and builds the
// session's ExtractionResult. It never deduplicates.
type Aggregator struct {
	logger   *utils.Logger
	listings []models.CanonicalListing
}

func NewAggregator(logger *utils.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// AddPage appends one page of listings after the ones already collected.
func (a *Aggregator) AddPage(page []models.CanonicalListing) {
	a.listings = append(a.listings, page...)
}

// Count returns the number of listings collected so far.
func (a *Aggregator) Count() int {
	return len(a.listings)
}

// Result returns the collected listings with their summary and diagnostics.
func (a *Aggregator) Result(diag models.Diagnostics) models.ExtractionResult {
	listings := make([]models.CanonicalListing, len(a.listings))
	copy(listings, a.listings)

	res := models.ExtractionResult{
		Listings:    listings,
		Diagnostics: diag,
		Summary:     Summarize(listings),
	}
	a.logger.Info("[aggregator] %d listings, terminal reason: %s", len(listings), diag.TerminalReason)
	return res
}

// Summarize computes the summary statistics in a single pass over listings.
// Price-per-sqft figures only use listings where it is present.
func Summarize(listings []models.CanonicalListing) models.Summary {
	s := models.Summary{
		Count:          len(listings),
		ByPropertyType: make(map[string]int),
		ByBedrooms:     make(map[models.RoomCount]int),
		ByAgent:        make(map[string]int),
	}

	var prices, ppsf []float64
	for _, l := range listings {
		if l.Price != nil {
			prices = append(prices, *l.Price)
		}
		if l.PricePerSqft != nil {
			ppsf = append(ppsf, *l.PricePerSqft)
		}
		if l.PropertyType != nil {
			s.ByPropertyType[*l.PropertyType]++
		}
		if l.Bedrooms != nil {
			s.ByBedrooms[*l.Bedrooms]++
		}
		if l.AgentName != nil {
			s.ByAgent[*l.AgentName]++
		}
	}

	s.Price = columnStats(prices)
	s.PricePerSqft = columnStats(ppsf)
	s.TopAgents = topAgents(s.ByAgent, topAgentsLimit)
	return s
}

func columnStats(values []float64) models.Stats {
	st := models.Stats{Count: len(values)}
	if len(values) == 0 {
		return st
	}

	lo, hi, total := values[0], values[0], 0.0
	for _, v := range values {
		total += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	mean := total / float64(len(values))

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	st.Min, st.Max, st.Mean, st.Median = &lo, &hi, &mean, &median
	return st
}

func topAgents(byAgent map[string]int, limit int) []models.AgentCount {
	out := make([]models.AgentCount, 0, len(byAgent))
	for agent, n := range byAgent {
		out = append(out, models.AgentCount{Agent: agent, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Agent < out[j].Agent
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Print writes a plain-text summary of the result.
func (a *Aggregator) Print(w io.Writer, r *models.ExtractionResult) {
	sep := strings.Repeat("=", 54)
	thin := strings.Repeat("-", 54)

	fmt.Fprintf(w, "\n%s\n  LISTING EXTRACTION SUMMARY\n%s\n\n", sep, sep)

	fmt.Fprintf(w, "  Overview\n  %s\n", thin)
	fmt.Fprintf(w, "  Listings collected : %d\n", r.Summary.Count)
	fmt.Fprintf(w, "  Pages fetched      : %d\n", r.Diagnostics.PagesFetched)
	if len(r.Diagnostics.PagesSkipped) > 0 {
		fmt.Fprintf(w, "  Pages skipped      : %v\n", r.Diagnostics.PagesSkipped)
	}
	fmt.Fprintf(w, "  Stopped because    : %s\n", r.Diagnostics.TerminalReason)
	if r.Diagnostics.Detail != "" {
		fmt.Fprintf(w, "  Detail             : %s\n", r.Diagnostics.Detail)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Price (AED)\n  %s\n", thin)
	printStats(w, r.Summary.Price)
	fmt.Fprintf(w, "  Price per sq.ft (AED)\n  %s\n", thin)
	printStats(w, r.Summary.PricePerSqft)

	if len(r.Summary.ByBedrooms) > 0 {
		fmt.Fprintf(w, "  Listings by bedrooms\n  %s\n", thin)
		for _, c := range models.RoomCounts {
			if n := r.Summary.ByBedrooms[c]; n > 0 {
				fmt.Fprintf(w, "  %-8s %s (%d)\n", c, strings.Repeat("#", n), n)
			}
		}
		fmt.Fprintln(w)
	}

	if len(r.Summary.ByPropertyType) > 0 {
		fmt.Fprintf(w, "  Listings by property type\n  %s\n", thin)
		types := make([]string, 0, len(r.Summary.ByPropertyType))
		for t := range r.Summary.ByPropertyType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-20s %d\n", truncate(t, 20), r.Summary.ByPropertyType[t])
		}
		fmt.Fprintln(w)
	}

	if len(r.Summary.TopAgents) > 0 {
		fmt.Fprintf(w, "  Top agents\n  %s\n", thin)
		for i, ac := range r.Summary.TopAgents {
			fmt.Fprintf(w, "  %d. %-38s %d\n", i+1, truncate(ac.Agent, 38), ac.Count)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s\n\n", sep)
}

func printStats(w io.Writer, st models.Stats) {
	if st.Count == 0 {
		fmt.Fprintf(w, "  No data available\n\n")
		return
	}
	fmt.Fprintf(w, "  Average : %s\n", formatNumber(*st.Mean))
	fmt.Fprintf(w, "  Median  : %s\n", formatNumber(*st.Median))
	fmt.Fprintf(w, "  Min/Max : %s - %s\n\n", formatNumber(*st.Min), formatNumber(*st.Max))
}

// formatNumber renders f with thousands separators and two decimals.
func formatNumber(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String() + frac
	}
	return b.String() + frac
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
