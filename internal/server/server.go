package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/docstore"
	"github.com/mohammad-safakhou/deepresearch/internal/pipeline"
	"github.com/mohammad-safakhou/deepresearch/internal/retriever"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
	"github.com/mohammad-safakhou/deepresearch/provider"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
)

// Run assembles the full service from cfg and serves HTTP until the listener
// fails. All dependencies are constructed here, top down.
func Run(cfg *config.Config) error {
	e := newEcho()

	if err := store.Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	docs := docstore.New(llm, cfg.Docstore.ChunkSize, cfg.Docstore.ChunkOverlap, log.New(log.Writer(), "[DOCSTORE] ", log.LstdFlags))
	if cfg.Docstore.SnapshotPath != "" {
		if err := docs.LoadFile(cfg.Docstore.SnapshotPath); err != nil {
			return fmt.Errorf("loading docstore snapshot: %w", err)
		}
	}

	searcher, err := buildSearcher(cfg)
	if err != nil {
		return err
	}

	hybrid := retriever.NewHybrid(searcher, docs, log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags))

	metrics := pipeline.NewMetrics(prometheus.DefaultRegisterer)
	orch := pipeline.NewOrchestrator(llm, hybrid, pipeline.Options{
		Timeout:     cfg.General.DefaultTimeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Metrics:     metrics,
	})

	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Retrieval.Fetcher), cfg.Retrieval.FetchTimeout, 0)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	rh := &ResearchHandler{
		Runner:       orch,
		Records:      st,
		Logger:       log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
		DefaultKWeb:  cfg.Retrieval.WebResults,
		DefaultKDocs: cfg.Retrieval.DocResults,
	}
	rh.Register(api)
	dh := &DocumentsHandler{
		Docs:         docs,
		Fetcher:      fetcher,
		SnapshotPath: cfg.Docstore.SnapshotPath,
		Logger:       log.New(log.Writer(), "[DOCUMENTS] ", log.LstdFlags),
	}
	dh.Register(api)

	return e.Start(cfg.Server.Address)
}

// newEcho builds the echo instance with the shared middleware stack and a
// unified JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// buildSearcher constructs the configured web search provider, wrapped in a
// Redis result cache when Redis is configured. No provider configured yields
// a searcher that always reports unavailability, so retrieval degrades to
// document evidence instead of failing runs.
func buildSearcher(cfg *config.Config) (web_search.WebSearcher, error) {
	if cfg.Retrieval.WebProvider == "" {
		return web_search.Unavailable{}, nil
	}
	apiKey := cfg.Retrieval.BraveAPIKey
	if web_search.Provider(cfg.Retrieval.WebProvider) == web_search.SerperProvider {
		apiKey = cfg.Retrieval.SerperAPIKey
	}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Retrieval.WebProvider), apiKey)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Redis.Host == "" {
		return searcher, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	return web_search.NewCachedSearcher(searcher, rdb, cfg.Retrieval.CacheTTL), nil
}
