package schwab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/httputil"
	"github.com/wonny/optionsdash/pkg/logger"
)

const sampleChain = `{
  "symbol": "SPY",
  "status": "SUCCESS",
  "underlyingPrice": 470.25,
  "callExpDateMap": {
    "2024-02-16:31": {
      "470.0": [{"putCall": "CALL", "bid": 5.1, "ask": 5.3, "last": 5.2, "totalVolume": 1200, "openInterest": 9000,
                 "volatility": 13.5, "delta": 0.52, "gamma": 0.03, "theta": -0.12, "vega": 0.45, "strikePrice": 470.0,
                 "quoteTimeInLong": 1705420800000}],
      "475.0": [{"putCall": "CALL", "bid": 2.9, "ask": 3.1, "last": 3.0, "totalVolume": 800, "openInterest": 4000,
                 "volatility": -999.0, "delta": -999.0, "gamma": 0.02, "theta": -0.1, "vega": 0.4, "strikePrice": 475.0}]
    }
  },
  "putExpDateMap": {
    "2024-02-16:31": {
      "470.0": [{"putCall": "PUT", "bid": 4.8, "ask": 5.0, "last": 4.9, "totalVolume": 1500, "openInterest": 8000,
                 "volatility": 14.1, "delta": -0.48, "gamma": 0.03, "theta": -0.11, "vega": 0.44, "strikePrice": 470.0}]
    },
    "bad-key": {
      "470.0": [{"putCall": "PUT", "totalVolume": 1}]
    }
  }
}`

var fetchedAt = time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	httpClient := httputil.New(2*time.Second, logger.Nop()).DisableRetry()
	c := NewClient(httpClient, config.SchwabConfig{
		BaseURL:     srv.URL + "/",
		AccessToken: "token-123",
		StrikeCount: 20,
	}, logger.Nop())
	c.now = func() time.Time { return fetchedAt }
	return c
}

func TestFetchLiveChain(t *testing.T) {
	var gotAuth, gotPath string
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleChain))
	})

	chain, err := c.FetchLiveChain(context.Background(), "SPY")
	require.NoError(t, err)

	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "/chains", gotPath)
	assert.Equal(t, []string{"SPY"}, gotQuery["symbol"])
	assert.Equal(t, []string{"20"}, gotQuery["strikeCount"])

	assert.Equal(t, "SPY", chain.Symbol)
	assert.Equal(t, 470.25, chain.UnderlyingPrice)
	assert.Equal(t, fetchedAt, chain.FetchedAt)
	require.Len(t, chain.Records, 3)
	assert.Equal(t, int64(3500), chain.TotalVolume())

	// sorted by expiry, strike, type
	first := chain.Records[0]
	assert.Equal(t, contracts.Call, first.Type)
	assert.Equal(t, 470.0, first.Strike)
	assert.Equal(t, time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC), first.Expiry)
	assert.InDelta(t, 0.135, first.IV, 1e-9)
	assert.Equal(t, 0.52, first.Greeks.Delta)
	assert.Equal(t, time.UnixMilli(1705420800000).UTC(), first.Timestamp)

	assert.Equal(t, contracts.Put, chain.Records[1].Type)
	assert.Equal(t, fetchedAt, chain.Records[1].Timestamp)

	placeholder := chain.Records[2]
	assert.Equal(t, 475.0, placeholder.Strike)
	assert.Zero(t, placeholder.IV)
	assert.Zero(t, placeholder.Greeks.Delta)
}

func TestFetchLiveChain_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"failed status", http.StatusOK, `{"symbol":"ZZZ","status":"FAILED"}`},
		{"empty maps", http.StatusOK, `{"symbol":"ZZZ","status":"SUCCESS","callExpDateMap":{},"putExpDateMap":{}}`},
		{"malformed json", http.StatusOK, `{"symbol":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			chain, err := c.FetchLiveChain(context.Background(), "ZZZ")
			assert.Nil(t, chain)
			assert.ErrorIs(t, err, contracts.ErrSourceUnavailable)
		})
	}
}

func TestFetchLiveChain_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleChain))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchLiveChain(ctx, "SPY")
	assert.ErrorIs(t, err, contracts.ErrSourceUnavailable)
}

func TestNormalizeIV(t *testing.T) {
	assert.Equal(t, 0.25, normalizeIV(25))
	assert.Zero(t, normalizeIV(-999))
	assert.Zero(t, normalizeIV(0))
	assert.Zero(t, normalizeIV(5000))
}

func TestClientImplementsLiveFetcher(t *testing.T) {
	var _ contracts.LiveFetcher = (*Client)(nil)
}
