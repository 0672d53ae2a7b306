package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listing-scraper/api"
	"listing-scraper/config"
	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/scraper/propertyfinder"
	"listing-scraper/services"
	"listing-scraper/storage"
	"listing-scraper/utils"
)

func main() {
	cfg := config.Load()

	query := flag.String("query", "Damac Safa Two", "Project or area to search for")
	propertyType := flag.String("type", "", "Property type filter (apartment, villa, townhouse, ...)")
	minPrice := flag.Float64("min-price", 0, "Minimum price in AED (0 = no minimum)")
	maxPrice := flag.Float64("max-price", 0, "Maximum price in AED (0 = no maximum)")
	bedrooms := flag.String("bedrooms", "", "Bedroom filter: studio, 1, 2, 3, 4 or 5+")
	flag.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum result pages to fetch")
	flag.IntVar(&cfg.MaxRecords, "max-records", cfg.MaxRecords, "Stop after this many listings (0 = no cap)")
	flag.StringVar(&cfg.CSVOutputPath, "out", cfg.CSVOutputPath, "CSV export path")
	flag.BoolVar(&cfg.UseBrowser, "browser", cfg.UseBrowser, "Render pages in headless Chrome")
	serve := flag.Bool("serve", false, "Run the HTTP API instead of a single search")
	flag.Parse()

	logger := utils.NewLoggerWithLevel(cfg.LogLevel)
	if cfg.MaxPages < 1 {
		logger.Error("-pages must be at least 1, got %d", cfg.MaxPages)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pf, err := propertyfinder.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to set up scraper: %v", err)
		os.Exit(1)
	}
	defer pf.Close()

	if *serve {
		if err := runServer(ctx, cfg, pf, logger); err != nil {
			logger.Error("Server failed: %v", err)
			os.Exit(1)
		}
		return
	}

	session := models.NewSearchSession(*query, cfg.MaxPages)
	session.PropertyType = *propertyType
	if *minPrice > 0 {
		session.MinPrice = minPrice
	}
	if *maxPrice > 0 {
		session.MaxPrice = maxPrice
	}
	if *bedrooms != "" {
		b, err := models.ParseRoomLabel(*bedrooms)
		if err != nil {
			logger.Error("Invalid -bedrooms: %v", err)
			os.Exit(2)
		}
		session.Bedrooms = &b
	}

	logger.Info("=== Listing extraction starting ===")
	logger.Info("Query %q | pages: %d | retries: %d | rate: %dms | browser: %t",
		session.Query, cfg.MaxPages, cfg.MaxRetries, cfg.RateLimitMs, cfg.UseBrowser)

	pf.OnProgress(func(p scraper.Progress) {
		logger.Info("Progress: page %d/%d, %d listings (%.0f%%)", p.Page, p.MaxPages, p.Extracted, p.Fraction*100)
	})

	result := pf.Run(ctx, session)

	if len(result.Listings) == 0 {
		logger.Warn("No listings collected (%s)", result.Diagnostics.TerminalReason)
	} else if err := export(cfg, result.Listings, logger); err != nil {
		logger.Error("Export failed: %v", err)
	}

	services.NewAggregator(logger).Print(os.Stdout, &result)

	if result.Diagnostics.TerminalReason == models.ReasonAccessDenied ||
		result.Diagnostics.TerminalReason == models.ReasonFirstPageFailed {
		os.Exit(1)
	}
}

// export writes listings to every configured backend.
func export(cfg *config.Config, listings []models.CanonicalListing, logger *utils.Logger) error {
	writers := make([]storage.ListingWriter, 0, 2)

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		return err
	}
	writers = append(writers, csvWriter)

	if cfg.ExportPostgres {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
		} else {
			writers = append(writers, pgWriter)
		}
	}

	var errs []error
	for _, w := range writers {
		if err := w.Write(listings); err != nil {
			errs = append(errs, err)
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		logger.Info("Exported %d listings to %s", len(listings), cfg.CSVOutputPath)
	}
	return errors.Join(errs...)
}

func runServer(ctx context.Context, cfg *config.Config, searcher api.Searcher, logger *utils.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(searcher, cfg.MaxPages, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting server on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
