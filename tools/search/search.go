// Package search provides the search_web tool the panel's models can invoke
// during tool-enabled rounds.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-shiori/go-readability"

	"conclave"
)

// unavailableResult is what the model sees when search cannot run. It is a
// truthful tool result, not an error: the model proceeds without search.
const unavailableResult = "Web search is currently unavailable. Answer from your own knowledge and say so when a claim would need verification."

// invalidArgsResult is returned when tool arguments fail to decode.
const invalidArgsResult = "invalid tool arguments"

// Tool performs web searches against a Tavily-style provider and formats
// results for model consumption. Thin result snippets are enriched by
// fetching the page and extracting readable text.
type Tool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	depth      string
	maxResults int
	fetchPages bool
	logger     *slog.Logger
}

// Option configures the search tool.
type Option func(*Tool)

// WithBaseURL overrides the provider endpoint (tests point it at a fake).
func WithBaseURL(u string) Option {
	return func(t *Tool) { t.baseURL = u }
}

// WithMaxResults caps the number of results requested (default 5).
func WithMaxResults(n int) Option {
	return func(t *Tool) { t.maxResults = n }
}

// WithDepth sets the provider search depth (default "basic").
func WithDepth(d string) Option {
	return func(t *Tool) { t.depth = d }
}

// WithPageFetch toggles readable-text enrichment of thin snippets
// (default on).
func WithPageFetch(enabled bool) Option {
	return func(t *Tool) { t.fetchPages = enabled }
}

// WithLogger sets the logger for fetch/extract diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates the search tool. An empty apiKey is allowed; every call then
// returns the unavailable sentinel so the panel can still deliberate.
func New(apiKey string, opts ...Option) *Tool {
	t := &Tool{
		apiKey:     apiKey,
		baseURL:    "https://api.tavily.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		depth:      "basic",
		maxResults: 5,
		fetchPages: true,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []conclave.ToolDefinition {
	return []conclave.ToolDefinition{{
		Name:        "search_web",
		Description: "Search the web for current information. Use for recent events, prices, rates, or any claim that needs up-to-date or verifiable sources.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (conclave.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil || strings.TrimSpace(params.Query) == "" {
		return conclave.ToolResult{Error: invalidArgsResult}, nil
	}

	content, err := t.Search(ctx, params.Query)
	if err != nil {
		t.logger.Warn("search failed", "query", params.Query, "error", err)
		return conclave.ToolResult{Content: unavailableResult}, nil
	}
	return conclave.ToolResult{Content: content}, nil
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search queries the provider and returns formatted result blocks.
func (t *Tool) Search(ctx context.Context, query string) (string, error) {
	if t.apiKey == "" {
		return unavailableResult, nil
	}

	results, err := t.providerSearch(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	if t.fetchPages {
		t.enrich(ctx, results)
	}
	return formatResults(results), nil
}

func (t *Tool) providerSearch(ctx context.Context, query string) ([]searchResult, error) {
	payload, err := json.Marshal(struct {
		Query       string `json:"query"`
		SearchDepth string `json:"search_depth,omitempty"`
		MaxResults  int    `json:"max_results,omitempty"`
	}{Query: query, SearchDepth: t.depth, MaxResults: t.maxResults})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &conclave.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}

	var data struct {
		Results []searchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("search parse: %w", err)
	}
	return data.Results, nil
}

// minSnippetLen is the content length under which a result is worth
// enriching from its page.
const minSnippetLen = 200

// maxExtractLen bounds the readable text kept per result.
const maxExtractLen = 4000

// enrich fetches thin results' pages concurrently and replaces their content
// with readable extracted text. Failures leave the snippet untouched.
func (t *Tool) enrich(ctx context.Context, results []searchResult) {
	var wg sync.WaitGroup
	for i := range results {
		if len(results[i].Content) >= minSnippetLen {
			continue
		}
		wg.Add(1)
		go func(r *searchResult) {
			defer wg.Done()
			text, err := t.fetchReadable(ctx, r.URL)
			if err != nil {
				t.logger.Debug("page fetch failed", "url", r.URL, "error", err)
				return
			}
			if text != "" {
				r.Content = text
			}
		}(&results[i])
	}
	wg.Wait()
}

// fetchReadable downloads a page and extracts its readable text.
func (t *Tool) fetchReadable(ctx context.Context, rawURL string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ConclaveBot/1.0)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return "", err
	}

	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxExtractLen {
		text = text[:maxExtractLen]
	}
	return text, nil
}

// formatResults renders "[i] title\nurl\ncontent" blocks separated by blank
// lines.
func formatResults(results []searchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n%s", i+1, r.Title, r.URL, r.Content)
	}
	return b.String()
}

// compile-time check
var _ conclave.Tool = (*Tool)(nil)
