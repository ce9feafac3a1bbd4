// Package search implements the web search backend over DuckDuckGo's
// lite HTML interface. No API key is required; the endpoint is scraped
// and results are normalized into ranked snippets.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"finsight/pkg/backend"
)

const (
	defaultEndpoint = "https://lite.duckduckgo.com/lite/"
	defaultTopN     = 5
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// rateLimit enforces one query per second across all client instances
// and goroutines. The lite endpoint throttles aggressively otherwise.
var rateLimit struct {
	mu   sync.Mutex
	last time.Time
}

// Snippet is one ranked search result.
type Snippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client scrapes DuckDuckGo lite for top-N text snippets. It implements
// backend.Invoker.
type Client struct {
	httpClient *http.Client
	endpoint   string
	topN       int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, including its timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Client) { s.httpClient = c }
}

// WithEndpoint overrides the search endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(s *Client) { s.endpoint = endpoint }
}

// WithTopN sets the default result cap.
func WithTopN(n int) Option {
	return func(s *Client) {
		if n > 0 {
			s.topN = n
		}
	}
}

// New creates a search client with a modest timeout.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   defaultEndpoint,
		topN:       defaultTopN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend in traces and logs.
func (c *Client) Name() string {
	return "web_search"
}

// Invoke performs one search and renders the top-N snippets. Results
// keep the remote service's relevance order.
func (c *Client) Invoke(ctx context.Context, req backend.Request) (backend.Result, error) {
	if err := req.Validate(); err != nil {
		return backend.Result{}, backend.NewError(backend.KindNotFound, c.Name(), err)
	}

	snippets, err := c.Search(ctx, req.Query, req.TopN)
	if err != nil {
		return backend.Result{}, err
	}

	return backend.Result{Text: renderSnippets(snippets)}, nil
}

// Search scrapes the lite HTML page for up to topN results.
func (c *Client) Search(ctx context.Context, query string, topN int) ([]Snippet, error) {
	if topN <= 0 {
		topN = c.topN
	}

	if err := c.waitRateLimit(ctx); err != nil {
		return nil, backend.WrapTransport(c.Name(), err)
	}

	formData := url.Values{}
	formData.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, backend.NewError(backend.KindNetwork, c.Name(), err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, backend.WrapTransport(c.Name(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, backend.NewError(backend.KindRateLimited, c.Name(), fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return nil, backend.NewError(backend.KindAuth, c.Name(), fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, backend.NewError(backend.KindNetwork, c.Name(), fmt.Errorf("http %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.WrapTransport(c.Name(), err)
	}

	return parseHTMLResults(string(body), topN), nil
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	rateLimit.mu.Lock()
	// Recheck after every sleep: another caller may have claimed the
	// slot while the lock was released.
	for {
		wait := time.Until(rateLimit.last.Add(time.Second))
		if wait <= 0 {
			break
		}
		rateLimit.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		rateLimit.mu.Lock()
	}
	rateLimit.last = time.Now()
	rateLimit.mu.Unlock()
	return nil
}

// renderSnippets produces the prompt-embeddable text form. An empty
// result set is valid output, not a failure.
func renderSnippets(snippets []Snippet) string {
	if len(snippets) == 0 {
		return "No search results found."
	}
	var b strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, s.Title, s.URL)
		if s.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", s.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	linkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	linkPatternAlt = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	snippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([^<]+(?:<[^>]+>[^<]*</[^>]+>)*[^<]*)</td>`)
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
	anyLinkPattern = regexp.MustCompile(`<a[^>]+href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
)

// parseHTMLResults extracts results from the lite HTML page, which has a
// simple structure of result links and snippet cells.
func parseHTMLResults(html string, topN int) []Snippet {
	var results []Snippet

	matches := linkPattern.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		matches = linkPatternAlt.FindAllStringSubmatch(html, -1)
	}
	snippetMatches := snippetPattern.FindAllStringSubmatch(html, -1)

	for i, match := range matches {
		if len(match) < 3 {
			continue
		}

		urlStr := strings.TrimSpace(match[1])
		title := cleanHTML(match[2])
		if urlStr == "" || title == "" {
			continue
		}

		snippet := ""
		if i < len(snippetMatches) && len(snippetMatches[i]) > 1 {
			snippet = cleanHTML(snippetMatches[i][1])
		}

		results = append(results, Snippet{Title: title, URL: urlStr, Snippet: snippet})
		if len(results) >= topN {
			break
		}
	}

	if len(results) == 0 {
		results = fallbackParse(html, topN)
	}
	return results
}

// fallbackParse scans plain links when the structured patterns miss.
func fallbackParse(html string, topN int) []Snippet {
	var results []Snippet
	seen := make(map[string]bool)

	for _, match := range anyLinkPattern.FindAllStringSubmatch(html, -1) {
		if len(match) < 3 {
			continue
		}
		urlStr := strings.TrimSpace(match[1])
		title := cleanHTML(match[2])

		if strings.Contains(urlStr, "duckduckgo.com") ||
			strings.HasPrefix(urlStr, "/") ||
			strings.HasPrefix(urlStr, "#") ||
			strings.HasPrefix(urlStr, "javascript:") {
			continue
		}
		if len(title) < 5 || seen[urlStr] {
			continue
		}
		seen[urlStr] = true

		results = append(results, Snippet{Title: title, URL: urlStr})
		if len(results) >= topN {
			break
		}
	}
	return results
}

// cleanHTML strips tags and decodes the entities the lite page emits.
func cleanHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return strings.TrimSpace(replacer.Replace(s))
}
