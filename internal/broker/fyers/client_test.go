package fyers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiscan/oiscan/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RPS = 1000
	cfg.Burst = 1000
	client, err := NewClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func testCreds() domain.Credentials {
	return domain.Credentials{ClientID: "APP-100", AccessToken: "tok", Secret: "sec"}
}

func TestHistory_ParsesAndOrdersCandles(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/history", r.URL.Path)
		assert.Equal(t, "APP-100:tok", r.Header.Get("Authorization"))
		assert.Equal(t, "NSE:TCS-EQ", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5", r.URL.Query().Get("resolution"))
		// Out of order on purpose; the client must sort chronologically.
		w.Write([]byte(`{"s":"ok","candles":[
			[1700000300,101,108,100,107,900],
			[1700000000,100,110,99,105,1200]
		]}`))
	})

	candles, err := client.History(context.Background(), testCreds(), "NSE:TCS-EQ")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, domain.Time(1700000000*int64(time.Second)), candles[0].Time)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 110.0, candles[0].High)
	assert.Equal(t, 99.0, candles[0].Low)
	assert.Equal(t, 105.0, candles[0].Close)
	assert.Equal(t, 1200.0, candles[0].Volume)
	assert.True(t, candles[0].Time < candles[1].Time)
}

func TestHistory_TokenExpired(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"error","code":-16,"message":"Your token has expired"}`))
	})

	_, err := client.History(context.Background(), testCreds(), "NSE:TCS-EQ")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestHistory_APIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"error","code":-50,"message":"invalid symbol"}`))
	})

	_, err := client.History(context.Background(), testCreds(), "NSE:BOGUS")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenExpired)
	assert.Contains(t, err.Error(), "invalid symbol")
}

func TestQuotes_MapsNamesAndSkipsFailures(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/quotes", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("symbols"), "NSE:NIFTY50-INDEX")
		w.Write([]byte(`{"s":"ok","d":[
			{"n":"NSE:NIFTY50-INDEX","s":"ok","v":{"lp":22000.5,"chp":0.42}},
			{"n":"NSE:NIFTYBANK-INDEX","s":"error","v":{}}
		]}`))
	})

	quotes, err := client.Quotes(context.Background(), testCreds(), []string{"NIFTY50", "BANKNIFTY"})
	require.NoError(t, err)
	require.Contains(t, quotes, "NIFTY50")
	assert.Equal(t, 0.42, quotes["NIFTY50"].ChangePercent)
	assert.NotContains(t, quotes, "BANKNIFTY")
}

func TestOptionChain_SelectsATMAndITM(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/options-chain-v3", r.URL.Path)
		w.Write([]byte(`{"s":"ok","data":{"lastPrice":102.4,"optionsChain":[
			{"strike_price":95,"option_type":"CE","oi":100,"oich":5,"oichp":1.1},
			{"strike_price":100,"option_type":"CE","oi":200,"oich":10,"oichp":2.2},
			{"strike_price":105,"option_type":"CE","oi":300,"oich":15,"oichp":3.3},
			{"strike_price":100,"option_type":"PE","oi":150,"oich":-5,"oichp":-1.5}
		]}}`))
	})

	oi, err := client.OptionChain(context.Background(), testCreds(), "NSE:TCS-EQ")
	require.NoError(t, err)
	require.NotNil(t, oi.ATMChange)
	// ATM is the 100 strike (nearest 102.4); ITM is the strike below it.
	assert.Equal(t, 2.2, *oi.ATMChange)
	assert.Equal(t, []float64{1.1}, oi.ITMChanges)
}

func TestSelectOIChanges_Empty(t *testing.T) {
	oi := selectOIChanges(0, nil)
	assert.Nil(t, oi.ATMChange)
	assert.Empty(t, oi.ITMChanges)
}

func TestSessionRange_ClampsToNow(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	midSession := time.Date(2026, 8, 31, 11, 0, 0, 0, ist)
	from, to := sessionRange(midSession)
	assert.Equal(t, 9, from.Hour())
	assert.Equal(t, 15, from.Minute())
	assert.True(t, to.Equal(midSession))

	afterClose := time.Date(2026, 8, 31, 18, 0, 0, 0, ist)
	_, to = sessionRange(afterClose)
	assert.Equal(t, 15, to.Hour())
	assert.Equal(t, 30, to.Minute())
}
