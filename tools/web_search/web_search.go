package web_search

import (
	"context"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/serper"
)

// WebSearcher returns up to k ranked results for a query. Implementations own
// their retry/backoff policy; callers only see success or ErrUnavailable.
type WebSearcher interface {
	Search(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

// ErrUnavailable is returned when no provider is configured or the configured
// provider cannot serve the query.
var ErrUnavailable = &Error{"web search unavailable"}

var ErrUnsupportedProvider = &Error{"unsupported provider"}

type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// Unavailable stands in when no provider is configured. Every call fails with
// ErrUnavailable, which retrieval treats as a degraded source.
type Unavailable struct{}

func (Unavailable) Search(ctx context.Context, q string, k int) ([]models.Result, error) {
	return nil, ErrUnavailable
}
