package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/baochat/baochat/internal/model/chat"
)

const htmlBaseURL = "https://html.duckduckgo.com"

// htmlStrategy scrapes the DuckDuckGo HTML endpoint. Its markup carries
// semantic result classes, so this is the precise primary source.
type htmlStrategy struct {
	client    *http.Client
	userAgent string
	baseURL   string
}

// NewHTMLStrategy builds the primary DuckDuckGo strategy. An empty baseURL
// selects the live endpoint; tests point it at a stub server.
func NewHTMLStrategy(client *http.Client, userAgent, baseURL string) Strategy {
	if baseURL == "" {
		baseURL = htmlBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &htmlStrategy{client: client, userAgent: userAgent, baseURL: baseURL}
}

func (s *htmlStrategy) Name() string { return "DuckDuckGo" }

func (s *htmlStrategy) Search(ctx context.Context, query string, maxResults int) ([]chat.SearchResult, error) {
	endpoint := s.baseURL + "/html/?q=" + url.QueryEscape(query)
	doc, err := fetchDocument(ctx, s.client, s.userAgent, endpoint)
	if err != nil {
		return nil, err
	}

	var results []chat.SearchResult
	doc.Find("div.result__body").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := sel.Find("a.result__a")
		if title.Length() == 0 {
			return true
		}
		href, _ := title.Attr("href")
		text := trimText(title)
		if text == "" || href == "" {
			return true
		}

		results = append(results, chat.SearchResult{
			Title:   text,
			URL:     href,
			Snippet: truncate(trimText(sel.Find("a.result__snippet")), snippetLimit),
			Source:  s.Name(),
		})
		return len(results) < maxResults
	})

	return results, nil
}

func fetchDocument(ctx context.Context, client *http.Client, userAgent, endpoint string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	return doc, nil
}

func trimText(sel *goquery.Selection) string {
	return collapseSpace(sel.Text())
}
