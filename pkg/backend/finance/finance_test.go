package finance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"finsight/pkg/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nvdaPayload = `{
  "quoteResponse": {
    "result": [{
      "symbol": "NVDA",
      "longName": "NVIDIA Corporation",
      "regularMarketPrice": 128.44,
      "currency": "USD",
      "regularMarketChangePercent": 3.01,
      "marketCap": 3160000000000,
      "trailingPE": 45.2,
      "epsTrailingTwelveMonths": 2.84,
      "fiftyTwoWeekHigh": 140.76,
      "fiftyTwoWeekLow": 39.23,
      "averageAnalystRating": "1.6 - Buy"
    }],
    "error": null
  }
}`

// sparsePayload omits the optional numeric fields, as Yahoo does for
// funds and some foreign listings.
const sparsePayload = `{
  "quoteResponse": {
    "result": [{
      "symbol": "VTSAX",
      "shortName": "Vanguard Total Stock Market",
      "regularMarketPrice": 121.50,
      "currency": "USD"
    }],
    "error": null
  }
}`

func quoteServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("symbols"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestQuote(t *testing.T) {
	ts := quoteServer(t, http.StatusOK, nvdaPayload)
	c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

	quote, err := c.Quote(context.Background(), "NVDA")
	require.NoError(t, err)

	assert.Equal(t, "NVDA", quote.Symbol)
	assert.Equal(t, "NVIDIA Corporation", quote.CompanyName)
	assert.Equal(t, "128.44", quote.Price)
	assert.Equal(t, "3.01%", quote.ChangePercent)
	assert.Equal(t, "3160000000000", quote.MarketCap)
	assert.Equal(t, "45.20", quote.PERatio)
	assert.Equal(t, "1.6 - Buy", quote.Recommendation)
}

func TestQuoteMissingFieldsUseSentinel(t *testing.T) {
	ts := quoteServer(t, http.StatusOK, sparsePayload)
	c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

	quote, err := c.Quote(context.Background(), "VTSAX")
	require.NoError(t, err)

	// Present values come through
	assert.Equal(t, "121.50", quote.Price)
	assert.Equal(t, "Vanguard Total Stock Market", quote.CompanyName)

	// Absent values carry the sentinel, not empty strings
	assert.Equal(t, backend.Unavailable, quote.PERatio)
	assert.Equal(t, backend.Unavailable, quote.EPS)
	assert.Equal(t, backend.Unavailable, quote.MarketCap)
	assert.Equal(t, backend.Unavailable, quote.Recommendation)
	assert.Equal(t, backend.Unavailable, quote.ChangePercent)
}

func TestQuoteIdempotent(t *testing.T) {
	ts := quoteServer(t, http.StatusOK, nvdaPayload)
	c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

	first, err := c.Quote(context.Background(), "NVDA")
	require.NoError(t, err)
	second, err := c.Quote(context.Background(), "NVDA")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQuoteErrors(t *testing.T) {
	t.Run("unknown symbol", func(t *testing.T) {
		ts := quoteServer(t, http.StatusOK, `{"quoteResponse": {"result": [], "error": null}}`)
		c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

		_, err := c.Quote(context.Background(), "ZZZZZZ")
		require.Error(t, err)
		assert.Equal(t, backend.KindNotFound, backend.KindOf(err))
	})

	t.Run("api error payload", func(t *testing.T) {
		ts := quoteServer(t, http.StatusOK,
			`{"quoteResponse": {"result": [], "error": {"code": "Bad Request", "description": "Invalid symbol"}}}`)
		c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

		_, err := c.Quote(context.Background(), "???")
		require.Error(t, err)
		assert.Equal(t, backend.KindNotFound, backend.KindOf(err))
	})

	t.Run("status mapping", func(t *testing.T) {
		tests := []struct {
			status int
			kind   backend.ErrorKind
		}{
			{http.StatusUnauthorized, backend.KindAuth},
			{http.StatusTooManyRequests, backend.KindRateLimited},
			{http.StatusNotFound, backend.KindNotFound},
			{http.StatusBadGateway, backend.KindNetwork},
		}
		for _, tt := range tests {
			ts := quoteServer(t, tt.status, "")
			c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

			_, err := c.Quote(context.Background(), "NVDA")
			require.Error(t, err)
			assert.Equal(t, tt.kind, backend.KindOf(err))
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := quoteServer(t, http.StatusOK, `{not json`)
		c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

		_, err := c.Quote(context.Background(), "NVDA")
		require.Error(t, err)
		assert.Equal(t, backend.KindNetwork, backend.KindOf(err))
	})
}

func TestInvoke(t *testing.T) {
	t.Run("renders text and fields", func(t *testing.T) {
		ts := quoteServer(t, http.StatusOK, nvdaPayload)
		c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

		result, err := c.Invoke(context.Background(), backend.Request{Symbol: "NVDA"})
		require.NoError(t, err)

		assert.Contains(t, result.Text, "NVIDIA Corporation (NVDA)")
		assert.Contains(t, result.Text, "P/E ratio: 45.20")
		assert.Equal(t, "128.44", result.Fields["price"])
		assert.Equal(t, "1.6 - Buy", result.Fields["recommendation"])
	})

	t.Run("falls back to query as symbol", func(t *testing.T) {
		ts := quoteServer(t, http.StatusOK, nvdaPayload)
		c := New(WithEndpoint(ts.URL), WithHTTPClient(ts.Client()))

		result, err := c.Invoke(context.Background(), backend.Request{Query: "NVDA"})
		require.NoError(t, err)
		assert.Equal(t, "NVDA", result.Fields["symbol"])
	})

	t.Run("rejects empty request", func(t *testing.T) {
		c := New()
		_, err := c.Invoke(context.Background(), backend.Request{})
		require.Error(t, err)
		assert.Equal(t, backend.KindNotFound, backend.KindOf(err))
	})
}

func TestName(t *testing.T) {
	assert.Equal(t, "financial_data", New().Name())
}
