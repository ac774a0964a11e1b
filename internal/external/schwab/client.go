package schwab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/httputil"
	"github.com/wonny/optionsdash/pkg/logger"
)

// Client fetches option chains from the brokerage market-data API
// ⭐ SSOT: 브로커 옵션 체인 호출은 이 클라이언트에서만
type Client struct {
	httpClient  *httputil.Client
	limiter     *rate.Limiter
	logger      *logger.Logger
	baseURL     string
	token       string
	strikeCount int
	now         func() time.Time
}

// NewClient creates a new chain client.
// RequestsPerSec <= 0 disables local pacing.
func NewClient(httpClient *httputil.Client, cfg config.SchwabConfig, log *logger.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSec > 0 {
		burst := int(cfg.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	return &Client{
		httpClient:  httpClient,
		limiter:     limiter,
		logger:      log.Module("schwab"),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.AccessToken,
		strikeCount: cfg.StrikeCount,
		now:         time.Now,
	}
}

// FetchLiveChain implements contracts.LiveFetcher.
// Every failure, including an empty chain, wraps ErrSourceUnavailable.
func (c *Client) FetchLiveChain(ctx context.Context, symbol string) (*contracts.RawChain, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", contracts.ErrSourceUnavailable, err)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("contractType", "ALL")
	params.Set("includeUnderlyingQuote", "true")
	if c.strikeCount > 0 {
		params.Set("strikeCount", strconv.Itoa(c.strikeCount))
	}

	headers := map[string]string{"Accept": "application/json"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	resp, err := c.httpClient.Get(ctx, fmt.Sprintf("%s/chains?%s", c.baseURL, params.Encode()), headers)
	if err != nil {
		return nil, fmt.Errorf("%w: HTTP request failed: %v", contracts.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", contracts.ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body failed: %v", contracts.ErrSourceUnavailable, err)
	}

	chain, err := c.parseChain(body, symbol)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"contracts": len(chain.Records),
		"volume":    chain.TotalVolume(),
	}).Debug("Fetched option chain")

	return chain, nil
}

// chainResponse is the subset of the chains endpoint we read
type chainResponse struct {
	Symbol          string                              `json:"symbol"`
	Status          string                              `json:"status"`
	UnderlyingPrice float64                             `json:"underlyingPrice"`
	CallExpDateMap  map[string]map[string][]optionQuote `json:"callExpDateMap"`
	PutExpDateMap   map[string]map[string][]optionQuote `json:"putExpDateMap"`
}

type optionQuote struct {
	PutCall         string  `json:"putCall"`
	Bid             float64 `json:"bid"`
	Ask             float64 `json:"ask"`
	Last            float64 `json:"last"`
	TotalVolume     int64   `json:"totalVolume"`
	OpenInterest    int64   `json:"openInterest"`
	Volatility      float64 `json:"volatility"`
	Delta           float64 `json:"delta"`
	Gamma           float64 `json:"gamma"`
	Theta           float64 `json:"theta"`
	Vega            float64 `json:"vega"`
	StrikePrice     float64 `json:"strikePrice"`
	QuoteTimeInLong int64   `json:"quoteTimeInLong"`
}

// parseChain normalizes the expiry/strike maps into chain records
func (c *Client) parseChain(body []byte, symbol string) (*contracts.RawChain, error) {
	var raw chainResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse response failed: %v", contracts.ErrSourceUnavailable, err)
	}
	if raw.Status != "" && !strings.EqualFold(raw.Status, "SUCCESS") {
		return nil, fmt.Errorf("%w: chain status %s", contracts.ErrSourceUnavailable, raw.Status)
	}

	chain := &contracts.RawChain{
		Symbol:          symbol,
		UnderlyingPrice: raw.UnderlyingPrice,
		FetchedAt:       c.now(),
		Records:         make([]contracts.ChainRecord, 0),
	}

	for _, side := range []struct {
		typ contracts.OptionType
		m   map[string]map[string][]optionQuote
	}{
		{contracts.Call, raw.CallExpDateMap},
		{contracts.Put, raw.PutExpDateMap},
	} {
		for expKey, strikes := range side.m {
			expiry, err := parseExpiryKey(expKey)
			if err != nil {
				c.logger.WithField("key", expKey).Warn("Skipping unparseable expiry")
				continue
			}
			for strikeKey, quotes := range strikes {
				if len(quotes) == 0 {
					continue
				}
				rec, ok := toRecord(symbol, side.typ, expiry, strikeKey, quotes[0], chain.FetchedAt)
				if ok {
					chain.Records = append(chain.Records, rec)
				}
			}
		}
	}

	if chain.Empty() {
		return nil, fmt.Errorf("%w: empty chain for %s", contracts.ErrSourceUnavailable, symbol)
	}

	sortRecords(chain.Records)
	return chain, nil
}

// parseExpiryKey reads "2024-02-16:31" (date:days-to-expiry)
func parseExpiryKey(key string) (time.Time, error) {
	date, _, _ := strings.Cut(key, ":")
	return time.Parse(contracts.DateLayout, date)
}

func toRecord(symbol string, typ contracts.OptionType, expiry time.Time, strikeKey string, q optionQuote, fetchedAt time.Time) (contracts.ChainRecord, bool) {
	strike := q.StrikePrice
	if strike <= 0 {
		parsed, err := strconv.ParseFloat(strikeKey, 64)
		if err != nil || parsed <= 0 {
			return contracts.ChainRecord{}, false
		}
		strike = parsed
	}

	ts := fetchedAt
	if q.QuoteTimeInLong > 0 {
		ts = time.UnixMilli(q.QuoteTimeInLong).UTC()
	}

	return contracts.ChainRecord{
		Symbol:       symbol,
		Strike:       strike,
		Expiry:       expiry,
		Type:         typ,
		Bid:          nonNegative(q.Bid),
		Ask:          nonNegative(q.Ask),
		Last:         nonNegative(q.Last),
		Volume:       max(q.TotalVolume, 0),
		OpenInterest: max(q.OpenInterest, 0),
		IV:           normalizeIV(q.Volatility),
		Greeks: contracts.Greeks{
			Delta: sanitize(q.Delta),
			Gamma: sanitize(q.Gamma),
			Theta: sanitize(q.Theta),
			Vega:  sanitize(q.Vega),
		},
		Timestamp: ts,
	}, true
}

// normalizeIV converts percent volatility to a fraction; sentinel values become 0
func normalizeIV(v float64) float64 {
	if v <= 0 || v > 1000 {
		return 0
	}
	return v / 100
}

// sanitize drops the -999 placeholder the API uses for missing greeks
func sanitize(v float64) float64 {
	if v <= -999 {
		return 0
	}
	return v
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func sortRecords(records []contracts.ChainRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Expiry.Equal(b.Expiry) {
			return a.Expiry.Before(b.Expiry)
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.Type < b.Type
	})
}
