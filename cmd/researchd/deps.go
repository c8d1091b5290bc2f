package main

import (
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/docstore"
	"github.com/mohammad-safakhou/deepresearch/internal/pipeline"
	"github.com/mohammad-safakhou/deepresearch/internal/retriever"
	"github.com/mohammad-safakhou/deepresearch/provider"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
)

// buildDocstore constructs the document store and loads its snapshot when one
// is configured.
func buildDocstore(cfg *config.Config, embedder docstore.Embedder) (*docstore.Store, error) {
	docs := docstore.New(embedder, cfg.Docstore.ChunkSize, cfg.Docstore.ChunkOverlap, log.New(log.Writer(), "[DOCSTORE] ", log.LstdFlags))
	if cfg.Docstore.SnapshotPath != "" {
		if err := docs.LoadFile(cfg.Docstore.SnapshotPath); err != nil {
			return nil, fmt.Errorf("loading docstore snapshot: %w", err)
		}
	}
	return docs, nil
}

// buildOrchestrator wires the one-shot pipeline for CLI runs, sharing the
// provider between completions and embeddings.
func buildOrchestrator(cfg *config.Config) (*pipeline.Orchestrator, *docstore.Store, error) {
	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	docs, err := buildDocstore(cfg, llm)
	if err != nil {
		return nil, nil, err
	}
	searcher, err := buildSearcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	hybrid := retriever.NewHybrid(searcher, docs, nil)
	orch := pipeline.NewOrchestrator(llm, hybrid, pipeline.Options{
		Timeout:     cfg.General.DefaultTimeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	return orch, docs, nil
}

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
