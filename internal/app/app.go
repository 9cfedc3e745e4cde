package app

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsonev198862/autofix-api/internal/config"
	handlers "github.com/tsonev198862/autofix-api/internal/http"
	"github.com/tsonev198862/autofix-api/internal/obs"
	"github.com/tsonev198862/autofix-api/internal/rates"
	"github.com/tsonev198862/autofix-api/internal/routes"
	"github.com/tsonev198862/autofix-api/internal/search"
	"github.com/tsonev198862/autofix-api/internal/suppliers"
)

type App struct {
	Router     http.Handler
	Aggregator *search.Aggregator
	Metrics    *obs.Metrics
}

func SetAppConfig() *App {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	httpClient := &http.Client{Timeout: cfg.SupplierTimeout}

	sources := []search.Source{
		suppliers.NewImpex(cfg.ImpexURL, cfg.ImpexAPIKey, cfg.ExcludedBrands, httpClient, logger),
		suppliers.NewEmex(cfg.EmexURL, cfg.EmexCreds, httpClient, logger),
		suppliers.NewStimo(cfg.StimoURL, cfg.StimoCreds, httpClient, logger),
		suppliers.NewThunder(cfg.ThunderURL, cfg.ThunderCreds, cfg.SupplierTimeout, logger),
	}
	// APEC needs credentials up front; without them only APEC stays out.
	if apec, err := suppliers.NewApec(cfg.ApecURL, cfg.ApecCreds, httpClient, logger); err != nil {
		logger.Warn("apec supplier disabled", "error", err)
	} else {
		sources = append(sources, apec)
	}

	customRegistry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(customRegistry)

	rateProvider := rates.NewProvider(cfg.RatesURL, httpClient, logger)
	agg := search.NewAggregator(sources, rateProvider, cfg.SupplierTimeout, metrics, logger)
	rl := search.NewIPRateLimiter(30, time.Minute)
	h := handlers.NewHandler(agg, rl, metrics)

	router := routes.GetRoutes(h, metrics, logger, cfg.SearchTimeout)

	return &App{
		Router:     router,
		Aggregator: agg,
		Metrics:    metrics,
	}
}
