// Package finance implements the financial data backend over the Yahoo
// Finance quote API. Lookups are read-only and idempotent: the same
// symbol with no intervening market change yields field-for-field equal
// results.
package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finsight/pkg/backend"
)

const defaultEndpoint = "https://query1.finance.yahoo.com/v7/finance/quote"

// Quote is the fixed schema returned for every symbol. Fields the
// remote source does not carry for an asset hold backend.Unavailable,
// so a consumer can tell "no P/E for this asset" from a failed lookup.
type Quote struct {
	Symbol         string `json:"symbol"`
	CompanyName    string `json:"company_name"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	ChangePercent  string `json:"change_percent"`
	MarketCap      string `json:"market_cap"`
	PERatio        string `json:"pe_ratio"`
	EPS            string `json:"eps"`
	FiftyTwoWkHigh string `json:"fifty_two_week_high"`
	FiftyTwoWkLow  string `json:"fifty_two_week_low"`
	Recommendation string `json:"recommendation"`
}

// Client fetches quotes from the Yahoo Finance API. It implements
// backend.Invoker.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, including its timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Client) { f.httpClient = c }
}

// WithEndpoint overrides the quote endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(f *Client) { f.endpoint = endpoint }
}

// New creates a finance client with a modest timeout.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   defaultEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend in traces and logs.
func (c *Client) Name() string {
	return "financial_data"
}

// Invoke looks up the request symbol and renders the fixed field schema.
func (c *Client) Invoke(ctx context.Context, req backend.Request) (backend.Result, error) {
	symbol := strings.TrimSpace(req.Symbol)
	if symbol == "" {
		symbol = strings.TrimSpace(req.Query)
	}
	if symbol == "" {
		return backend.Result{}, backend.NewError(backend.KindNotFound, c.Name(), fmt.Errorf("ticker symbol is required"))
	}

	quote, err := c.Quote(ctx, symbol)
	if err != nil {
		return backend.Result{}, err
	}

	fields := quote.fieldMap()
	return backend.Result{Text: renderQuote(quote), Fields: fields}, nil
}

// quoteResponse mirrors the subset of the Yahoo quote payload we read.
type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string   `json:"symbol"`
			LongName                   string   `json:"longName"`
			ShortName                  string   `json:"shortName"`
			RegularMarketPrice         *float64 `json:"regularMarketPrice"`
			Currency                   string   `json:"currency"`
			RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
			MarketCap                  *int64   `json:"marketCap"`
			TrailingPE                 *float64 `json:"trailingPE"`
			EpsTrailingTwelveMonths    *float64 `json:"epsTrailingTwelveMonths"`
			FiftyTwoWeekHigh           *float64 `json:"fiftyTwoWeekHigh"`
			FiftyTwoWeekLow            *float64 `json:"fiftyTwoWeekLow"`
			AverageAnalystRating       string   `json:"averageAnalystRating"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// Quote fetches the fixed-schema quote for one symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	endpoint := fmt.Sprintf("%s?symbols=%s", c.endpoint, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, backend.NewError(backend.KindNetwork, c.Name(), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "finsight/0.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, backend.WrapTransport(c.Name(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Quote{}, backend.NewError(backend.KindAuth, c.Name(), fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return Quote{}, backend.NewError(backend.KindRateLimited, c.Name(), fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, backend.NewError(backend.KindNotFound, c.Name(), fmt.Errorf("symbol %s", symbol))
	case resp.StatusCode != http.StatusOK:
		return Quote{}, backend.NewError(backend.KindNetwork, c.Name(), fmt.Errorf("http %d", resp.StatusCode))
	}

	var payload quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, backend.NewError(backend.KindNetwork, c.Name(), fmt.Errorf("decode response: %w", err))
	}

	if payload.QuoteResponse.Error != nil {
		return Quote{}, backend.NewError(backend.KindNotFound, c.Name(),
			fmt.Errorf("%s: %s", payload.QuoteResponse.Error.Code, payload.QuoteResponse.Error.Description))
	}
	if len(payload.QuoteResponse.Result) == 0 {
		return Quote{}, backend.NewError(backend.KindNotFound, c.Name(), fmt.Errorf("symbol %s not found", symbol))
	}

	r := payload.QuoteResponse.Result[0]

	name := r.LongName
	if name == "" {
		name = r.ShortName
	}

	return Quote{
		Symbol:         r.Symbol,
		CompanyName:    stringOr(name),
		Price:          floatOr(r.RegularMarketPrice, "%.2f"),
		Currency:       stringOr(r.Currency),
		ChangePercent:  floatOr(r.RegularMarketChangePercent, "%.2f%%"),
		MarketCap:      intOr(r.MarketCap),
		PERatio:        floatOr(r.TrailingPE, "%.2f"),
		EPS:            floatOr(r.EpsTrailingTwelveMonths, "%.2f"),
		FiftyTwoWkHigh: floatOr(r.FiftyTwoWeekHigh, "%.2f"),
		FiftyTwoWkLow:  floatOr(r.FiftyTwoWeekLow, "%.2f"),
		Recommendation: stringOr(r.AverageAnalystRating),
	}, nil
}

func (q Quote) fieldMap() map[string]string {
	return map[string]string{
		"symbol":              q.Symbol,
		"company_name":        q.CompanyName,
		"price":               q.Price,
		"currency":            q.Currency,
		"change_percent":      q.ChangePercent,
		"market_cap":          q.MarketCap,
		"pe_ratio":            q.PERatio,
		"eps":                 q.EPS,
		"fifty_two_week_high": q.FiftyTwoWkHigh,
		"fifty_two_week_low":  q.FiftyTwoWkLow,
		"recommendation":      q.Recommendation,
	}
}

// renderQuote produces the prompt-embeddable text form.
func renderQuote(q Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", q.CompanyName, q.Symbol)
	fmt.Fprintf(&b, "Price: %s %s (%s)\n", q.Price, q.Currency, q.ChangePercent)
	fmt.Fprintf(&b, "Market cap: %s\n", q.MarketCap)
	fmt.Fprintf(&b, "P/E ratio: %s, EPS: %s\n", q.PERatio, q.EPS)
	fmt.Fprintf(&b, "52-week range: %s - %s\n", q.FiftyTwoWkLow, q.FiftyTwoWkHigh)
	fmt.Fprintf(&b, "Analyst recommendation: %s", q.Recommendation)
	return b.String()
}

func stringOr(s string) string {
	if strings.TrimSpace(s) == "" {
		return backend.Unavailable
	}
	return s
}

func floatOr(f *float64, format string) string {
	if f == nil {
		return backend.Unavailable
	}
	return fmt.Sprintf(format, *f)
}

func intOr(i *int64) string {
	if i == nil {
		return backend.Unavailable
	}
	return fmt.Sprintf("%d", *i)
}
