package models

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a diagnostic came from.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageNormalize Stage = "normalize"
	StagePaginate  Stage = "paginate"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	TransientNetworkError ErrorKind = "transient_network"
	PermanentAccessError  ErrorKind = "permanent_access"
	MalformedContentError ErrorKind = "malformed_content"
	EmptyResult           ErrorKind = "empty_result"
)

// Sentinels usable with errors.Is against a *FetchError.
var (
	ErrTransient = errors.New("transient network error")
	ErrPermanent = errors.New("permanent access error")
)

// FetchError is returned by the page fetcher once it gives up on a URL.
type FetchError struct {
	Kind     ErrorKind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d, %d attempts): %v", e.Kind, e.URL, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s (%d attempts): %v", e.Kind, e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == TransientNetworkError
	case ErrPermanent:
		return e.Kind == PermanentAccessError
	}
	return false
}

// Diagnostic is a structured record of something that went wrong (or ended
// the session) without being raised to the caller.
type Diagnostic struct {
	Stage  Stage     `json:"stage"`
	Kind   ErrorKind `json:"kind"`
	Page   int       `json:"page"`
	URL    string    `json:"url,omitempty"`
	Reason string    `json:"reason"`
}

// TerminalReason explains why a session stopped.
type TerminalReason string

const (
	ReasonExhausted       TerminalReason = "exhausted"
	ReasonEmptyQuery      TerminalReason = "empty query"
	ReasonFullyFetched    TerminalReason = "fully fetched"
	ReasonPageLimit       TerminalReason = "page limit reached"
	ReasonRecordCap       TerminalReason = "record cap reached"
	ReasonAccessDenied    TerminalReason = "access denied"
	ReasonFirstPageFailed TerminalReason = "first page failed"
	ReasonCancelled       TerminalReason = "cancelled"
)

// Diagnostics summarises how a session ran.
type Diagnostics struct {
	SessionID      string         `json:"session_id"`
	Strategies     map[int]string `json:"strategies"`
	PagesFetched   int            `json:"pages_fetched"`
	PagesSkipped   []int          `json:"pages_skipped"`
	TerminalReason TerminalReason `json:"terminal_reason"`
	Detail         string         `json:"detail,omitempty"`
	Entries        []Diagnostic   `json:"entries"`
}

// Add appends a diagnostic entry.
func (d *Diagnostics) Add(entry Diagnostic) {
	d.Entries = append(d.Entries, entry)
}

// Stats holds min/max/mean/median over a numeric column. Nil fields mean
// there were no values to summarise.
type Stats struct {
	Count  int      `json:"count"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
}

// Summary holds the analytics computed over an ExtractionResult.
type Summary struct {
	Count          int               `json:"count"`
	Price          Stats             `json:"price"`
	PricePerSqft   Stats             `json:"price_per_sqft"`
	ByPropertyType map[string]int    `json:"by_property_type"`
	ByBedrooms     map[RoomCount]int `json:"by_bedrooms"`
	ByAgent        map[string]int    `json:"by_agent"`
	TopAgents      []AgentCount      `json:"top_agents"`
}

// AgentCount pairs an agent with their listing count.
type AgentCount struct {
	Agent string `json:"agent"`
	Count int    `json:"count"`
}

// ExtractionResult is the single output of a session. It is always well
// formed, even when no listings were collected.
type ExtractionResult struct {
	Listings    []CanonicalListing `json:"listings"`
	Diagnostics Diagnostics        `json:"diagnostics"`
	Summary     Summary            `json:"summary"`
}
