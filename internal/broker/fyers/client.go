// Package fyers implements the market data client against the Fyers v3 REST
// and websocket APIs: intraday candles, option-chain open interest and index
// quotes. All REST calls go through a per-host token bucket and a circuit
// breaker; the broker's rate limits are the binding constraint.
package fyers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/net/ratelimit"
)

// ErrTokenExpired signals that the broker rejected the access token. The
// caller should refresh and re-save credentials.
var ErrTokenExpired = errors.New("fyers access token expired or invalid")

// Config holds broker client settings.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RPS             float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Resolution      string // candle resolution in minutes, "5" for the scanner
}

// DefaultConfig returns production defaults for the Fyers data API.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://api-t1.fyers.in",
		Timeout:         10 * time.Second,
		RPS:             8,
		Burst:           4,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
		Resolution:      "5",
	}
}

// Client talks to the Fyers data API.
type Client struct {
	httpc      *http.Client
	baseURL    string
	host       string
	resolution string
	limiter    *ratelimit.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewClient creates a broker client from config.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Resolution == "" {
		cfg.Resolution = "5"
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid fyers base URL %q", cfg.BaseURL)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "fyers",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("fyers circuit breaker state change")
		},
	})

	return &Client{
		httpc:      &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		host:       u.Host,
		resolution: cfg.Resolution,
		limiter:    ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		breaker:    breaker,
		log:        log,
	}, nil
}

// History fetches the current session's intraday candles for a symbol,
// chronological, at the configured resolution.
func (c *Client) History(ctx context.Context, creds domain.Credentials, symbol string) ([]domain.Candle, error) {
	from, to := sessionRange(time.Now())

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("resolution", c.resolution)
	q.Set("date_format", "0")
	q.Set("range_from", fmt.Sprintf("%d", from.Unix()))
	q.Set("range_to", fmt.Sprintf("%d", to.Unix()))
	q.Set("cont_flag", "1")

	var resp historyResponse
	if err := c.get(ctx, creds, "/data/history", q, &resp); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, domain.Candle{
			Time:   domain.Time(int64(row[0]) * int64(time.Second)),
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	return candles, nil
}

// OptionChain fetches open-interest change overlays for a symbol: the ATM
// strike's percent change and the two strikes immediately below it. The
// overlays are informational; selection only needs to be deterministic.
func (c *Client) OptionChain(ctx context.Context, creds domain.Credentials, symbol string) (domain.OIData, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("strikecount", "5")

	var resp optionChainResponse
	if err := c.get(ctx, creds, "/data/options-chain-v3", q, &resp); err != nil {
		return domain.OIData{}, err
	}
	return selectOIChanges(resp.Data.LastPrice, resp.Data.OptionsChain), nil
}

// Quotes fetches last price and day percent change for the named indices.
// Names absent from the response are simply missing from the returned map.
func (c *Client) Quotes(ctx context.Context, creds domain.Credentials, names []string) (map[string]domain.Quote, error) {
	symbols := make([]string, 0, len(names))
	byName := make(map[string]string, len(names)) // fyers symbol -> dashboard name
	for _, name := range names {
		sym := indexSymbol(name)
		symbols = append(symbols, sym)
		byName[sym] = name
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))

	var resp quotesResponse
	if err := c.get(ctx, creds, "/data/quotes", q, &resp); err != nil {
		return nil, err
	}

	quotes := make(map[string]domain.Quote, len(resp.Data))
	for _, d := range resp.Data {
		if d.Status != "ok" {
			continue
		}
		name, ok := byName[d.Name]
		if !ok {
			name = d.Name
		}
		quotes[name] = domain.Quote{
			LastPrice:     d.Values.LastPrice,
			ChangePercent: d.Values.ChangePercent,
		}
	}
	return quotes, nil
}

func (c *Client) get(ctx context.Context, creds domain.Credentials, path string, q url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx, c.host); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", creds.ClientID+":"+creds.AccessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fyers request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("fyers response read failed: %w", err)
		}

		var env apiEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("fyers response decode failed: %w", err)
		}
		if env.Status == "error" || resp.StatusCode == http.StatusUnauthorized {
			if isTokenError(resp.StatusCode, env) {
				return nil, ErrTokenExpired
			}
			return nil, fmt.Errorf("fyers api error %d: %s", env.Code, env.Message)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("fyers payload decode failed: %w", err)
		}
		return nil, nil
	})
	return err
}

// Fyers signals auth failures with -16/-17 codes or a 401.
func isTokenError(httpStatus int, env apiEnvelope) bool {
	if httpStatus == http.StatusUnauthorized {
		return true
	}
	if env.Code == -16 || env.Code == -17 {
		return true
	}
	msg := strings.ToLower(env.Message)
	return strings.Contains(msg, "token") && (strings.Contains(msg, "expire") || strings.Contains(msg, "invalid"))
}

// selectOIChanges picks the ATM strike (nearest to spot) and the two strikes
// immediately below it, reading the call-side percent changes.
func selectOIChanges(spot float64, chain []chainStrike) domain.OIData {
	calls := make([]chainStrike, 0, len(chain))
	for _, s := range chain {
		if s.OptionType == "CE" {
			calls = append(calls, s)
		}
	}
	if len(calls) == 0 || spot == 0 {
		return domain.OIData{}
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].StrikePrice < calls[j].StrikePrice })

	atm := 0
	for i := range calls {
		if abs(calls[i].StrikePrice-spot) < abs(calls[atm].StrikePrice-spot) {
			atm = i
		}
	}

	oi := domain.OIData{}
	change := calls[atm].OIChangePercent
	oi.ATMChange = &change

	for i := atm - 1; i >= 0 && i >= atm-2; i-- {
		oi.ITMChanges = append(oi.ITMChanges, calls[i].OIChangePercent)
	}
	return oi
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// sessionRange returns the NSE trading session window for the day of now,
// 09:15 to 15:30 IST, clamped to now for an in-progress session.
func sessionRange(now time.Time) (time.Time, time.Time) {
	ist := time.FixedZone("IST", 5*3600+1800)
	local := now.In(ist)
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 15, 0, 0, ist)
	end := time.Date(local.Year(), local.Month(), local.Day(), 15, 30, 0, 0, ist)
	if local.Before(end) {
		end = local
	}
	return open, end
}
