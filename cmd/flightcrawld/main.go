// Command flightcrawld is the demo entrypoint wiring the crawler core's
// packages into a running process: it registers one sample adapter, runs
// its scheduled crawl loop, and exposes a minimal HTTP status surface.
// The HTTP API itself is explicitly out of scope (spec.md §1) — this
// endpoint exists only so the demo is observable, not as a designed
// surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/flightcrawl/core/adapter"
	"github.com/flightcrawl/core/alert"
	"github.com/flightcrawl/core/breaker"
	"github.com/flightcrawl/core/cache"
	"github.com/flightcrawl/core/config"
	"github.com/flightcrawl/core/errhandler"
	"github.com/flightcrawl/core/factory"
	"github.com/flightcrawl/core/flightmodel"
	"github.com/flightcrawl/core/health"
	"github.com/flightcrawl/core/monitor"
	"github.com/flightcrawl/core/observe"
	"github.com/flightcrawl/core/ratelimit"
	"github.com/flightcrawl/core/safety"
	"github.com/flightcrawl/core/secret"
	"github.com/flightcrawl/core/store"
)

func defaultAdapterConfig() config.Document {
	return config.Document{
		"base_url":         "https://flytoday.example",
		"search_url":       "https://flytoday.example/search",
		"currency":         "USD",
		"interval_seconds": 900,
		"auth_secret":      "secretref:env:FLYTODAY_AUTH_SECRET",
	}
}

func validateAdapterConfig(doc config.Document) error {
	if config.Lookup(doc, "base_url", "") == "" {
		return errors.New("base_url is required")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observer, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "flightcrawld",
		Version:     "0.1.0",
		Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
	})
	if err != nil {
		log.Fatalf("flightcrawld: observer init: %v", err)
	}
	defer observer.Shutdown(context.Background())
	logger := observer.Logger()
	adapterTool := observe.ToolMeta{Namespace: "adapter", Name: "flytoday"}
	adapterLogger := logger.WithTool(adapterTool)

	obsMiddleware, err := observe.MiddlewareFromObserver(observer)
	if err != nil {
		log.Fatalf("flightcrawld: observability middleware: %v", err)
	}

	kv := buildStore(ctx)
	defer kv.Close()

	loader := config.NewLoader(defaultAdapterConfig(), validateAdapterConfig)
	adapterCfg, err := loader.Load("flytoday")
	if err != nil {
		log.Fatalf("flightcrawld: config: %v", err)
	}

	secretProviders := secret.NewRegistry()
	if err := secretProviders.Register("env", func(map[string]any) (secret.Provider, error) {
		return secret.NewEnvProvider(), nil
	}); err != nil {
		log.Fatalf("flightcrawld: register secret provider: %v", err)
	}
	envProvider, err := secretProviders.Create("env", nil)
	if err != nil {
		log.Fatalf("flightcrawld: secret provider: %v", err)
	}
	secrets := secret.NewResolver(false, envProvider)
	adapterCfg, err = config.ResolveStrings(ctx, secrets, adapterCfg)
	if err != nil {
		log.Fatalf("flightcrawld: resolve secrets: %v", err)
	}

	meta := flightmodel.AdapterMetadata{
		Name:      "flytoday",
		Kind:      flightmodel.KindInternational,
		BaseURL:    config.Lookup(adapterCfg, "base_url", ""),
		SearchURL:  config.Lookup(adapterCfg, "search_url", ""),
		Currency:   config.Lookup(adapterCfg, "currency", "USD"),
		AuthSecret: config.Lookup(adapterCfg, "auth_secret", ""),
		Creation:  flightmodel.CreationDirect,
		Active:    true,
		RateLimiting: flightmodel.RateLimitConfig{
			RequestsPerSecond: 1,
			BurstLimit:        3,
			CooldownPeriod:    time.Minute,
		},
		ErrorHandling:   flightmodel.ErrorHandlingConfig{MaxRetries: 2},
		MonitoringOn:    true,
		IntervalSeconds: config.Lookup(adapterCfg, "interval_seconds", 900),
		Extraction: flightmodel.ExtractionConfig{
			SearchForm: flightmodel.SearchFormFields{
				OriginField:        "origin",
				DestinationField:   "destination",
				DepartureDateField: "departure_date",
				PassengersField:    "passengers",
				CabinClassField:    "cabin",
				Submit:             "submit",
			},
			ResultsParsing: flightmodel.ResultsParsingFields{
				Container:     `<div class="result">.*?</div>`,
				Airline:       `<span class="airline">([^<]+)</span>`,
				DepartureTime: `<span class="dep">([^<]+)</span>`,
				ArrivalTime:   `<span class="arr">([^<]+)</span>`,
				Duration:      `<span class="dur">([^<]+)</span>`,
				Price:         `<span class="price">([^<]+)</span>`,
				SeatClass:     `<span class="class">([^<]+)</span>`,
			},
		},
		DataValidation: flightmodel.DataValidationConfig{
			RequiredFields: []string{"origin", "destination", "departure_date"},
			PriceMin:       0,
			PriceMax:       50_000,
			DurationMin:    0,
			DurationMax:    4000,
		},
	}

	rateLimiter := ratelimit.New()
	rateLimiter.Configure(meta.Name, ratelimit.Config{
		RequestsPerSecond: meta.RateLimiting.RequestsPerSecond,
		BurstLimit:        meta.RateLimiting.BurstLimit,
		CooldownPeriod:    meta.RateLimiting.CooldownPeriod,
	})

	breakers := breaker.NewManager()
	breakers.ConfigureAll(meta.Name, breaker.Config{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second})

	dispatcher := alert.NewDispatcher(nil)
	errorHandler := errhandler.New(breakers, dispatcher)
	go errorHandler.Run(ctx)

	registry := factory.NewRegistry()
	if err := registry.RegisterMetadata(meta); err != nil {
		log.Fatalf("flightcrawld: register adapter: %v", err)
	}

	respCache := cache.NewMemoryCache(cache.Policy{DefaultTTL: 2 * time.Minute, MaxTTL: 10 * time.Minute})

	deps := factory.Deps{
		RateLimiter:  rateLimiter,
		Breakers:     breakers,
		ErrorHandler: errorHandler,
		NewSession: func(context.Context) (adapter.Session, error) {
			return adapter.NewHTTPSession(meta.SearchURL, http.MethodGet).
				WithResponseCache(respCache, 2*time.Minute), nil
		},
	}
	inst, err := registry.Create(meta.Name, deps)
	if err != nil {
		log.Fatalf("flightcrawld: create adapter: %v", err)
	}

	safetyCrawler := safety.New(rateLimiter,
		safety.WithMaxRetries(3),
		safety.WithCooldown(time.Minute),
		safety.WithConcurrencyLimit(4, 2*time.Second),
	)
	scheduler := monitor.New(safetyCrawler, breakers)

	job := monitor.AdapterJob{
		Site: meta.Name,
		Routes: []flightmodel.SearchParams{
			{
				Origin:        "IKA",
				Destination:   "DXB",
				DepartureDate: time.Now().Add(48 * time.Hour),
				Passengers:    flightmodel.Passengers{Adults: 1},
				SeatClass:     flightmodel.SeatEconomy,
				TripType:      flightmodel.TripOneWay,
			},
		},
		Interval: time.Duration(meta.IntervalSeconds) * time.Second,
		Crawl:    countingCrawler(kv, meteredCrawler(obsMiddleware, adapterTool, loggingCrawler(adapterLogger, inst.Crawl))),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		scheduler.RunAdapter(groupCtx, job)
		return nil
	})
	group.Go(func() error {
		scheduler.SampleMemory(groupCtx, time.Minute)
		return nil
	})

	agg := health.NewAggregator()
	agg.Register("error_handler", errorHandler.Checker())
	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))

	srv := &http.Server{Addr: ":8080", Handler: statusRouter(scheduler, kv, agg)}
	group.Go(func() error {
		logger.Info(groupCtx, "flightcrawld: listening", observe.Field{Key: "addr", Value: srv.Addr})
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error(ctx, "flightcrawld: exited with error", observe.Field{Key: "error", Value: err.Error()})
	}
}

// buildStore dials the shared store when FLIGHTCRAWLD_REDIS_ADDR is set,
// falling back to an in-memory store on any connection failure (spec.md
// §6's fall-back-without-crashing requirement).
func buildStore(ctx context.Context) store.Store {
	addr := os.Getenv("FLIGHTCRAWLD_REDIS_ADDR")
	if addr == "" {
		return store.NewMemoryStore()
	}
	return store.NewWithFallback(ctx, addr, os.Getenv("FLIGHTCRAWLD_REDIS_PASSWORD"), 0)
}

// loggingCrawler wraps a crawl function with a tool-scoped logger, giving
// each attempt a structured record independent of the running counters in
// the shared store.
func loggingCrawler(logger observe.Logger, crawl safety.Crawler) safety.Crawler {
	return func(ctx context.Context, params flightmodel.SearchParams) ([]flightmodel.FlightRecord, error) {
		records, err := crawl(ctx, params)
		if err != nil {
			logger.Warn(ctx, "crawl attempt failed", observe.Field{Key: "error", Value: err.Error()})
			return records, err
		}
		logger.Info(ctx, "crawl attempt succeeded", observe.Field{Key: "flight_count", Value: len(records)})
		return records, nil
	}
}

// meteredCrawler adapts a safety.Crawler to observe.Middleware's generic
// ExecuteFunc shape, so every crawl attempt gets a trace span and an
// execution-duration metric the same way the package's originally
// tool-shaped Middleware would instrument any other named operation.
func meteredCrawler(mw *observe.Middleware, tool observe.ToolMeta, crawl safety.Crawler) safety.Crawler {
	wrapped := mw.Wrap(func(ctx context.Context, _ observe.ToolMeta, input any) (any, error) {
		params := input.(flightmodel.SearchParams)
		return crawl(ctx, params)
	})
	return func(ctx context.Context, params flightmodel.SearchParams) ([]flightmodel.FlightRecord, error) {
		result, err := wrapped(ctx, tool, params)
		records, _ := result.([]flightmodel.FlightRecord)
		return records, err
	}
}

// countingCrawler wraps a crawl function to persist running success/failure
// counters in kv, demonstrating the shared store's role as the process's
// durable (or Redis-shared) counters rather than in-memory-only metrics.
func countingCrawler(kv store.Store, crawl safety.Crawler) safety.Crawler {
	return func(ctx context.Context, params flightmodel.SearchParams) ([]flightmodel.FlightRecord, error) {
		records, err := crawl(ctx, params)
		key := "flightcrawld:crawls_failed"
		if err == nil && len(records) > 0 {
			key = "flightcrawld:crawls_succeeded"
		}
		_, _ = kv.Increment(ctx, key, 1)
		return records, err
	}
}

func statusRouter(scheduler *monitor.Scheduler, kv store.Store, agg *health.Aggregator) http.Handler {
	r := chi.NewRouter()
	r.Get("/livez", health.LivenessHandler())
	r.Get("/healthz", health.ReadinessHandler(agg))
	r.Get("/healthz/detailed", health.DetailedHandler(agg))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		succeeded, _ := kv.Get(req.Context(), "flightcrawld:crawls_succeeded")
		failed, _ := kv.Get(req.Context(), "flightcrawld:crawls_failed")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"overall_health": scheduler.OverallHealth(),
			"flytoday":       scheduler.DomainSnapshot("flytoday"),
			"crawls_succeeded": string(succeeded),
			"crawls_failed":    string(failed),
		})
	})
	return r
}
