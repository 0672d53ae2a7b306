package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"listing-scraper/models"
	"listing-scraper/storage"
	"listing-scraper/utils"
)

// Searcher runs one search session to completion.
type Searcher interface {
	Run(ctx context.Context, session *models.SearchSession) models.ExtractionResult
}

// Handlers contains HTTP handlers and their dependencies
type Handlers struct {
	searcher Searcher
	maxPages int
	logger   *utils.Logger
}

// NewHandlers creates a new Handlers instance. maxPages bounds what a
// request may ask for.
func NewHandlers(searcher Searcher, maxPages int, logger *utils.Logger) *Handlers {
	return &Handlers{searcher: searcher, maxPages: maxPages, logger: logger}
}

// SearchRequest is the body accepted by the search endpoints.
type SearchRequest struct {
	Query        string   `json:"query"`
	PropertyType string   `json:"property_type"`
	MinPrice     *float64 `json:"min_price"`
	MaxPrice     *float64 `json:"max_price"`
	Bedrooms     string   `json:"bedrooms"`
	MaxPages     int      `json:"max_pages"`
	MaxRecords   int      `json:"max_records"`
}

// Session validates the request and turns it into a SearchSession.
func (req SearchRequest) Session(limit int) (*models.SearchSession, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is required")
	}
	if (req.MinPrice != nil && *req.MinPrice < 0) || (req.MaxPrice != nil && *req.MaxPrice < 0) {
		return nil, errors.New("prices must not be negative")
	}
	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		return nil, errors.New("min_price is above max_price")
	}
	if req.MaxPages < 0 || req.MaxRecords < 0 {
		return nil, errors.New("max_pages and max_records must not be negative")
	}

	maxPages := req.MaxPages
	if maxPages == 0 || (limit > 0 && maxPages > limit) {
		maxPages = limit
	}
	if maxPages < 1 {
		maxPages = 1
	}

	s := models.NewSearchSession(req.Query, maxPages)
	s.PropertyType = strings.TrimSpace(req.PropertyType)
	s.MinPrice = req.MinPrice
	s.MaxPrice = req.MaxPrice
	s.MaxRecords = req.MaxRecords
	if req.Bedrooms != "" {
		b, err := models.ParseRoomLabel(req.Bedrooms)
		if err != nil {
			return nil, err
		}
		s.Bedrooms = &b
	}
	return s, nil
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Search handles POST /api/search
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	session, ok := h.decode(w, r)
	if !ok {
		return
	}
	result := h.searcher.Run(r.Context(), session)
	writeJSON(w, http.StatusOK, result)
}

// SearchCSV handles POST /api/search.csv
func (h *Handlers) SearchCSV(w http.ResponseWriter, r *http.Request) {
	session, ok := h.decode(w, r)
	if !ok {
		return
	}
	result := h.searcher.Run(r.Context(), session)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "listings-"+session.ID+".csv"))
	w.Header().Set("X-Terminal-Reason", string(result.Diagnostics.TerminalReason))

	cw, err := storage.NewCSVStream(w)
	if err != nil {
		h.logger.Error("[api] csv header: %v", err)
		return
	}
	if err := cw.Write(result.Listings); err != nil {
		h.logger.Error("[api] csv rows: %v", err)
	}
	_ = cw.Close()
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request) (*models.SearchSession, bool) {
	var req SearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return nil, false
	}
	session, err := req.Session(h.maxPages)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return session, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
