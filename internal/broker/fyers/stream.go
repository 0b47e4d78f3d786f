package fyers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oiscan/oiscan/internal/domain"
)

// QuoteHandler receives live index updates keyed by dashboard name.
type QuoteHandler func(name string, changePercent float64)

// QuoteStream maintains a websocket subscription to the broker's data socket
// and feeds index tick updates to a handler. It reconnects with backoff until
// its context is cancelled; REST polling remains the fallback path, so a dead
// stream degrades freshness, never correctness.
type QuoteStream struct {
	url     string
	log     zerolog.Logger
	handler QuoteHandler
}

// NewQuoteStream creates a stream against the given websocket URL
// (wss://socket.fyers.in/... in production).
func NewQuoteStream(url string, handler QuoteHandler, log zerolog.Logger) *QuoteStream {
	return &QuoteStream{url: url, handler: handler, log: log}
}

type streamTick struct {
	Type          string  `json:"type"`
	Symbol        string  `json:"symbol"`
	ChangePercent float64 `json:"chp"`
}

// Run connects, subscribes to the named indices and pumps ticks to the
// handler until ctx is done. Connection failures back off exponentially up
// to 30s.
func (s *QuoteStream) Run(ctx context.Context, creds domain.Credentials, names []string) error {
	backoff := time.Second
	for {
		err := s.connectOnce(ctx, creds, names)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Dur("backoff", backoff).Msg("quote stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *QuoteStream) connectOnce(ctx context.Context, creds domain.Credentials, names []string) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second

	headers := map[string][]string{
		"Authorization": {creds.ClientID + ":" + creds.AccessToken},
	}
	conn, _, err := dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		return fmt.Errorf("quote stream dial failed: %w", err)
	}
	defer conn.Close()

	symbols := make([]string, 0, len(names))
	byName := make(map[string]string, len(names))
	for _, name := range names {
		sym := indexSymbol(name)
		symbols = append(symbols, sym)
		byName[sym] = name
	}

	sub := map[string]interface{}{"T": "SUB_DATA", "symbols": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("quote stream subscribe failed: %w", err)
	}
	s.log.Info().Int("symbols", len(symbols)).Msg("quote stream subscribed")

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("quote stream read failed: %w", err)
		}
		var tick streamTick
		if err := json.Unmarshal(data, &tick); err != nil || tick.Symbol == "" {
			continue
		}
		name, ok := byName[tick.Symbol]
		if !ok {
			continue
		}
		s.handler(name, tick.ChangePercent)
	}
}
