package propertyfinder

import (
	"context"
	"fmt"
	"time"

	"listing-scraper/config"
	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/services"
	"listing-scraper/utils"
)

// browserSettle is how long a rendered page is left to finish client-side work.
const browserSettle = 3 * time.Second

// Scraper runs search sessions against Property Finder.
type Scraper struct {
	cfg        *config.Config
	logger     *utils.Logger
	controller *scraper.Controller
	browser    *scraper.BrowserTransport
}

// New wires the fetcher, extractors and controller from cfg. Selector
// overrides are read from cfg.SelectorRulesPath when set.
func New(cfg *config.Config, logger *utils.Logger) (*Scraper, error) {
	rules, err := scraper.LoadRuleSet(cfg.SelectorRulesPath, DefaultRules())
	if err != nil {
		return nil, fmt.Errorf("propertyfinder: %w", err)
	}

	s := &Scraper{cfg: cfg, logger: logger}

	var transport scraper.Transport
	if cfg.UseBrowser {
		s.browser = scraper.NewBrowserTransport(cfg.ChromeBin, cfg.UserAgent, browserSettle)
		transport = s.browser
		logger.Info("[propertyfinder] using headless browser transport")
	} else {
		transport = scraper.NewHTTPTransport(cfg.RequestTimeout)
	}

	s.controller, err = NewController(cfg, transport, rules, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("propertyfinder: %w", err)
	}
	return s, nil
}

// NewController assembles the pagination controller over transport.
func NewController(cfg *config.Config, transport scraper.Transport, rules scraper.RuleSet, logger *utils.Logger) (*scraper.Controller, error) {
	layout, err := scraper.NewLayoutExtractor(rules, logger)
	if err != nil {
		return nil, err
	}

	retry := utils.DefaultRetryPolicy(logger)
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryBaseDelayMs > 0 {
		retry.BaseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
	}
	retry.Jitter = time.Duration(cfg.JitterMs) * time.Millisecond

	pacer := utils.NewPacer(
		time.Duration(cfg.RateLimitMs)*time.Millisecond,
		time.Duration(cfg.JitterMs)*time.Millisecond,
	)
	fetcher := scraper.NewPageFetcher(transport, scraper.DefaultProfile(cfg.UserAgent, cfg.RequestTimeout), retry, pacer, logger)

	return scraper.NewController(
		NewSite(cfg.BaseURL),
		fetcher,
		[]scraper.Extractor{
			scraper.NewStructuredDataExtractor(logger),
			layout,
		},
		services.NewNormalizer(logger),
		pacer,
		logger,
	), nil
}

// OnProgress registers a callback invoked after every page.
func (s *Scraper) OnProgress(fn func(scraper.Progress)) {
	s.controller.OnProgress = fn
}

// Run executes one session to completion.
func (s *Scraper) Run(ctx context.Context, session *models.SearchSession) models.ExtractionResult {
	if session.MaxPages <= 0 {
		session.MaxPages = max(s.cfg.MaxPages, 1)
	}
	if session.MaxRecords <= 0 {
		session.MaxRecords = s.cfg.MaxRecords
	}
	return s.controller.Run(ctx, session)
}

// Close releases the browser, if one was started.
func (s *Scraper) Close() {
	if s.browser != nil {
		s.browser.Close()
	}
}
