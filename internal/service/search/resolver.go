package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/baochat/baochat/internal/model/chat"
)

const (
	// defaultUserAgent mimics a desktop browser; DuckDuckGo serves a
	// degraded page to unknown clients.
	defaultUserAgent = "Mozilla/5.0 (X11; Linux aarch64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.152 Safari/537.36"

	// defaultTimeout bounds every fetch, primary and fallback alike.
	defaultTimeout = 10 * time.Second

	snippetLimit = 200
)

// Strategy fetches and parses results from one search surface.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]chat.SearchResult, error)
}

// Resolver runs strategies in order until one yields results. It never
// returns an error: any failure degrades to an empty result list.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver builds a resolver over the given strategies. With none given it
// uses the DuckDuckGo HTML surface with the Lite surface as fallback.
func NewResolver(logger *slog.Logger, strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		client := &http.Client{Timeout: defaultTimeout}
		strategies = []Strategy{
			NewHTMLStrategy(client, defaultUserAgent, ""),
			NewLiteStrategy(client, defaultUserAgent, ""),
		}
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// ShouldSearch exposes the enrichment gate on the resolver so callers only
// need one collaborator.
func (r *Resolver) ShouldSearch(text string) bool {
	return ShouldSearch(text)
}

// Resolve fetches up to maxResults entries and a human-readable summary built
// from at most the first three.
func (r *Resolver) Resolve(ctx context.Context, query string, maxResults int) ([]chat.SearchResult, string) {
	results := r.fetch(ctx, query, maxResults)
	return results, Summarize(results)
}

func (r *Resolver) fetch(ctx context.Context, query string, maxResults int) []chat.SearchResult {
	for _, strategy := range r.strategies {
		results, err := strategy.Search(ctx, query, maxResults)
		if err != nil {
			r.logger.Warn("search strategy failed", "strategy", strategy.Name(), "error", err)
			continue
		}
		if len(results) == 0 {
			r.logger.Info("search strategy returned nothing", "strategy", strategy.Name())
			continue
		}
		return results
	}
	return nil
}

// Summarize renders results as numbered entries for prompt injection. An
// empty list yields a fixed sentence.
func Summarize(results []chat.SearchResult) string {
	if len(results) == 0 {
		return "No search results found."
	}

	var b strings.Builder
	b.WriteString("Based on web search:\n\n")
	for i, result := range results {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, result.Title)
		if result.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", result.Snippet)
		}
		fmt.Fprintf(&b, "   Source: %s\n\n", result.URL)
	}
	return b.String()
}

// truncate bounds s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
