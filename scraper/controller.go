package scraper

import (
	"context"
	"errors"
	"fmt"

	"listing-scraper/models"
	"listing-scraper/services"
	"listing-scraper/utils"
)

// State is a PaginationController state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StateNormalizing
	StateDeciding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateNormalizing:
		return "normalizing"
	case StateDeciding:
		return "deciding"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Progress is reported after every page.
type Progress struct {
	SessionID string
	Page      int
	MaxPages  int
	Extracted int
	Total     *int
	Fraction  float64
}

// Pacer spaces out consecutive page requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Controller drives a SearchSession page by page until a stop condition.
type Controller struct {
	site       Site
	fetcher    DocumentFetcher
	extractors []Extractor
	normalizer *services.Normalizer
	pacer      Pacer
	logger     *utils.Logger

	OnTransition func(from, to State, page int)
	OnProgress   func(Progress)
}

// NewController builds a Controller. pacer may be nil to run pages back to back.
func NewController(site Site, fetcher DocumentFetcher, extractors []Extractor, normalizer *services.Normalizer, pacer Pacer, logger *utils.Logger) *Controller {
	return &Controller{
		site:       site,
		fetcher:    fetcher,
		extractors: extractors,
		normalizer: normalizer,
		pacer:      pacer,
		logger:     logger,
	}
}

type run struct {
	c       *Controller
	session *models.SearchSession
	state   State
	agg     *services.Aggregator
	diag    models.Diagnostics
	log     *utils.Logger
}

// Run executes the session and always returns a well formed result. Failures
// are recorded in the diagnostics; nothing is raised.
func (c *Controller) Run(ctx context.Context, session *models.SearchSession) models.ExtractionResult {
	r := &run{
		c:       c,
		session: session,
		state:   StateIdle,
		agg:     services.NewAggregator(c.logger),
		diag: models.Diagnostics{
			SessionID:  session.ID,
			Strategies: make(map[int]string),
		},
		log: c.logger.WithFields(map[string]any{"session": session.ID}),
	}
	if session.Page < 1 {
		session.Page = 1
	}
	// a session is always bounded
	if session.MaxPages < 1 {
		session.MaxPages = 1
	}

	r.log.Info("[controller] starting %q, max %d pages", session.Query, session.MaxPages)
	reason, detail := r.loop(ctx)
	r.transition(StateTerminated)
	r.diag.TerminalReason = reason
	r.diag.Detail = detail
	r.diag.Add(models.Diagnostic{
		Stage:  models.StagePaginate,
		Kind:   terminalKind(reason),
		Page:   session.Page,
		Reason: string(reason),
	})
	r.log.Info("[controller] stopped: %s (%d listings, %d pages)", reason, r.agg.Count(), r.diag.PagesFetched)
	return r.agg.Result(r.diag)
}

func (r *run) loop(ctx context.Context) (models.TerminalReason, string) {
	s := r.session
	for {
		if s.Page > s.MaxPages {
			return models.ReasonPageLimit, ""
		}
		if err := ctx.Err(); err != nil {
			return models.ReasonCancelled, err.Error()
		}

		reason, done := r.step(ctx)
		if done {
			return reason, ""
		}

		s.Page++
		if s.Page > s.MaxPages {
			return models.ReasonPageLimit, ""
		}
		if r.c.pacer == nil {
			continue
		}
		if err := r.c.pacer.Wait(ctx); err != nil {
			return models.ReasonCancelled, err.Error()
		}
	}
}

// step processes the current page. done reports that the session must stop.
func (r *run) step(ctx context.Context) (models.TerminalReason, bool) {
	s := r.session
	page := s.Page
	pageURL := r.c.site.PageURL(s, page)

	r.transition(StateFetching)
	doc, err := r.c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return r.fetchFailed(ctx, page, pageURL, err)
	}
	r.diag.PagesFetched++

	if page == 1 {
		if r.c.site.NoResults(doc) {
			r.diag.Add(models.Diagnostic{
				Stage:  models.StageExtract,
				Kind:   models.EmptyResult,
				Page:   page,
				URL:    pageURL,
				Reason: "source reported no results",
			})
			return models.ReasonEmptyQuery, true
		}
		if total, ok := r.c.site.TotalAvailable(doc); ok {
			s.TotalAvailable = &total
			r.log.Info("[controller] source reports %d listings", total)
		}
	}

	r.transition(StateExtracting)
	raw, strategy, diags := ExtractPage(doc, page, r.c.extractors)
	r.diag.Strategies[page] = strategy
	for _, d := range diags {
		r.diag.Add(d)
	}

	r.transition(StateNormalizing)
	listings, fieldDiags := r.c.normalizer.NormalizeAll(raw, s.Query)
	for _, d := range fieldDiags {
		if d.URL == "" {
			d.URL = pageURL
		}
		r.diag.Add(d)
	}
	capped := false
	if s.MaxRecords > 0 {
		if room := s.MaxRecords - r.agg.Count(); len(listings) >= room {
			listings = listings[:room]
			capped = true
		}
	}
	r.agg.AddPage(listings)
	r.log.Info("[controller] page %d: %d records via %s, %d total", page, len(raw), strategy, r.agg.Count())

	r.transition(StateDeciding)
	r.progress()
	switch {
	case len(raw) == 0:
		r.diag.Add(models.Diagnostic{
			Stage:  models.StageExtract,
			Kind:   models.EmptyResult,
			Page:   page,
			URL:    pageURL,
			Reason: "no records on page",
		})
		return models.ReasonExhausted, true
	case capped:
		return models.ReasonRecordCap, true
	case s.TotalAvailable != nil && r.agg.Count() >= *s.TotalAvailable:
		return models.ReasonFullyFetched, true
	}
	return "", false
}

func (r *run) fetchFailed(ctx context.Context, page int, pageURL string, err error) (models.TerminalReason, bool) {
	kind := models.TransientNetworkError
	var fe *models.FetchError
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	r.diag.Add(models.Diagnostic{
		Stage:  models.StageFetch,
		Kind:   kind,
		Page:   page,
		URL:    pageURL,
		Reason: err.Error(),
	})

	switch {
	case ctx.Err() != nil:
		return models.ReasonCancelled, true
	case kind == models.PermanentAccessError:
		return models.ReasonAccessDenied, true
	case page == 1:
		return models.ReasonFirstPageFailed, true
	}
	r.log.Warn("[controller] skipping page %d: %v", page, err)
	r.diag.PagesSkipped = append(r.diag.PagesSkipped, page)
	return "", false
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	if r.c.OnTransition != nil {
		r.c.OnTransition(from, to, r.session.Page)
	}
}

func (r *run) progress() {
	if r.c.OnProgress == nil {
		return
	}
	s := r.session
	p := Progress{
		SessionID: s.ID,
		Page:      s.Page,
		MaxPages:  s.MaxPages,
		Extracted: r.agg.Count(),
		Total:     s.TotalAvailable,
	}
	switch {
	case s.TotalAvailable != nil && *s.TotalAvailable > 0:
		p.Fraction = float64(p.Extracted) / float64(*s.TotalAvailable)
	default:
		p.Fraction = float64(s.Page) / float64(s.MaxPages)
	}
	if p.Fraction > 1 {
		p.Fraction = 1
	}
	r.c.OnProgress(p)
}

func terminalKind(reason models.TerminalReason) models.ErrorKind {
	switch reason {
	case models.ReasonAccessDenied:
		return models.PermanentAccessError
	case models.ReasonFirstPageFailed:
		return models.TransientNetworkError
	case models.ReasonEmptyQuery, models.ReasonExhausted:
		return models.EmptyResult
	}
	return ""
}
