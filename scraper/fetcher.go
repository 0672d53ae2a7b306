package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"listing-scraper/models"
	"listing-scraper/utils"
)

const maxBodyBytes = 16 << 20

// RequestProfile describes how a request should look on the wire.
type RequestProfile struct {
	UserAgent string
	Headers   map[string]string
	Timeout   time.Duration
}

// DefaultProfile mimics a desktop Chrome navigation.
func DefaultProfile(userAgent string, timeout time.Duration) RequestProfile {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	return RequestProfile{
		UserAgent: userAgent,
		Timeout:   timeout,
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.9",
			"Cache-Control":             "no-cache",
			"Pragma":                    "no-cache",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	}
}

// Response is the raw outcome of one transport round trip.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Transport performs a single GET. It does not retry.
type Transport interface {
	Get(ctx context.Context, url string, profile RequestProfile) (*Response, error)
}

// HTTPTransport is a Transport over net/http.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Get(ctx context.Context, pageURL string, profile RequestProfile) (*Response, error) {
	if profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, profile.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", profile.UserAgent)
	for k, v := range profile.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode, Body: body}, nil
}

// DocumentFetcher returns a parsed results page.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// PageFetcher paces, retries and classifies page requests, and parses the
// body into a document tree.
type PageFetcher struct {
	transport Transport
	profile   RequestProfile
	retry     *utils.RetryPolicy
	pacer     *utils.Pacer
	logger    *utils.Logger
}

func NewPageFetcher(transport Transport, profile RequestProfile, retry *utils.RetryPolicy, pacer *utils.Pacer, logger *utils.Logger) *PageFetcher {
	return &PageFetcher{
		transport: transport,
		profile:   profile,
		retry:     retry,
		pacer:     pacer,
		logger:    logger,
	}
}

// Fetch returns the parsed document for pageURL, or a *models.FetchError.
// The policy's Retryable decides what is retried; when unset only transient
// failures are. Nothing is retried once ctx is done.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	policy := *f.retry
	retryable := policy.Retryable
	if retryable == nil {
		retryable = isTransient
	}
	policy.Retryable = func(err error) bool {
		return ctx.Err() == nil && retryable(err)
	}

	var doc *goquery.Document
	attempts, err := policy.Do(ctx, "fetch "+pageURL, func() error {
		if err := f.pacer.Wait(ctx); err != nil {
			return &models.FetchError{Kind: models.TransientNetworkError, URL: pageURL, Err: err}
		}
		d, err := f.attempt(ctx, pageURL)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			fe = &models.FetchError{Kind: models.TransientNetworkError, URL: pageURL, Err: err}
		}
		fe.Attempts = attempts
		f.logger.Warn("[fetcher] giving up on %s: %v", pageURL, fe)
		return nil, fe
	}

	f.logger.Debug("[fetcher] fetched %s in %d attempt(s)", pageURL, attempts)
	return doc, nil
}

func isTransient(err error) bool {
	return errors.Is(err, models.ErrTransient)
}

func (f *PageFetcher) attempt(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := f.transport.Get(ctx, pageURL, f.profile)
	if err != nil {
		return nil, &models.FetchError{Kind: models.TransientNetworkError, URL: pageURL, Err: err}
	}

	if kind, failed := classifyStatus(resp.StatusCode); failed {
		return nil, &models.FetchError{
			Kind:   kind,
			URL:    pageURL,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}
	if marker, blocked := blockMarker(resp.Body); blocked {
		return nil, &models.FetchError{
			Kind:   models.PermanentAccessError,
			URL:    pageURL,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("block page detected (%s)", marker),
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &models.FetchError{Kind: models.MalformedContentError, URL: pageURL, Err: err}
	}
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = pageURL
	}
	if u, err := url.Parse(finalURL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

// classifyStatus maps an HTTP status to a failure kind. ok statuses return
// failed == false.
func classifyStatus(code int) (kind models.ErrorKind, failed bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly,
		code == http.StatusTooManyRequests, code >= 500:
		return models.TransientNetworkError, true
	default:
		// 401, 403, 407, 451 and the other 4xx will not change on retry
		return models.PermanentAccessError, true
	}
}

var blockMarkers = []string{
	"access denied",
	"request blocked",
	"are you a robot",
	"cf-chl-bypass",
	"kpsdk",
	"px-captcha",
}

// blockMarker looks for an anti-bot interstitial. Only short bodies are
// inspected: real results pages are far larger and may mention these words.
func blockMarker(body []byte) (string, bool) {
	if len(body) > 8192 {
		return "", false
	}
	lower := strings.ToLower(string(body))
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return m, true
		}
	}
	return "", false
}
