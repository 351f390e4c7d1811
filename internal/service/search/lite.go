package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baochat/baochat/internal/model/chat"
)

const liteBaseURL = "https://lite.duckduckgo.com"

// liteStrategy scrapes the DuckDuckGo Lite page. The markup there carries no
// result classes, so extraction is heuristic: outbound links plus whatever
// sibling text follows them. Less precise than the HTML surface, but the page
// is served more reliably.
type liteStrategy struct {
	client    *http.Client
	userAgent string
	baseURL   string
}

// NewLiteStrategy builds the fallback DuckDuckGo Lite strategy.
func NewLiteStrategy(client *http.Client, userAgent, baseURL string) Strategy {
	if baseURL == "" {
		baseURL = liteBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &liteStrategy{client: client, userAgent: userAgent, baseURL: baseURL}
}

func (s *liteStrategy) Name() string { return "DuckDuckGo Lite" }

func (s *liteStrategy) Search(ctx context.Context, query string, maxResults int) ([]chat.SearchResult, error) {
	endpoint := s.baseURL + "/lite/?q=" + url.QueryEscape(query)
	doc, err := fetchDocument(ctx, s.client, s.userAgent, endpoint)
	if err != nil {
		return nil, err
	}

	var results []chat.SearchResult
	doc.Find("a[href]").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= maxResults*2 {
			return false
		}

		href, _ := sel.Attr("href")
		if !isOutboundLink(href) {
			return true
		}

		title := truncate(trimText(sel), 100)
		if title == "" {
			title = "No title"
		}

		results = append(results, chat.SearchResult{
			Title:   title,
			URL:     href,
			Snippet: truncate(trimText(sel.Next()), 150),
			Source:  s.Name(),
		})
		return len(results) < maxResults
	})

	return results, nil
}

func isOutboundLink(href string) bool {
	return href != "" && !strings.HasPrefix(href, "/") && !strings.Contains(href, "duckduckgo.com")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
