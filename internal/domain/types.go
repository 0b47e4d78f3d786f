// Package domain holds the core entities of the qualification scanner:
// candles, derivatives, scan results and broker credentials. Everything in
// this package is pure data plus pure functions; no I/O.
package domain

import "time"

// Status classifies a scanned derivative within one scan run.
type Status string

const (
	StatusQualified    Status = "qualified"
	StatusDisqualified Status = "disqualified"
	StatusIgnored      Status = "ignored"
)

// Side is the trade direction implied by qualification. It is meaningful
// together with StatusQualified; for other statuses it is still set
// deterministically so consumers can bucket consistently.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Candle is a single intraday OHLCV bar. Candle sequences are chronological
// and immutable once fetched.
type Candle struct {
	Time   Time    `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// OIData carries open-interest change overlays for a symbol: the ATM strike's
// percent change and the percent changes of the nearest ITM strikes. A nil
// ATMChange means the option chain was unavailable, not zero change.
type OIData struct {
	ATMChange  *float64
	ITMChanges []float64
}

// Derivative is one symbol's outcome within a scan run.
type Derivative struct {
	Symbol      string    `json:"symbol"`
	Status      Status    `json:"status"`
	Side        Side      `json:"side"`
	ATMOIChange *float64  `json:"atmOiChange,omitempty"`
	ITMOIChange []float64 `json:"itmOiChange"`
	Candles     []Candle  `json:"candles"`
}

// Results is one completed scan snapshot. The three buckets partition the
// scanned universe: every symbol lands in exactly one of them, keyed by its
// Status.
type Results struct {
	Qualified    []Derivative `json:"qualified"`
	Disqualified []Derivative `json:"disqualified"`
	Ignored      []Derivative `json:"ignored"`
}

// Add places d into the bucket matching its status.
func (r *Results) Add(d Derivative) {
	switch d.Status {
	case StatusQualified:
		r.Qualified = append(r.Qualified, d)
	case StatusDisqualified:
		r.Disqualified = append(r.Disqualified, d)
	case StatusIgnored:
		r.Ignored = append(r.Ignored, d)
	}
}

// Len returns the total number of derivatives across all buckets.
func (r *Results) Len() int {
	return len(r.Qualified) + len(r.Disqualified) + len(r.Ignored)
}

// IndexPerformance is one index quote for the dashboard snapshot widget.
// A nil ChangePercent means the quote was unavailable this cycle.
type IndexPerformance struct {
	Name          string   `json:"name"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
}

// Quote is a broker quote for a single instrument.
type Quote struct {
	LastPrice     float64
	ChangePercent float64
}

// ConnectionStatus is the derived state of the stored broker credentials.
type ConnectionStatus string

const (
	ConnectionNotConnected ConnectionStatus = "NOT_CONNECTED"
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionExpired      ConnectionStatus = "EXPIRED"
)

// Credentials is the broker credential record. Expiry of zero means the
// access token never expires.
type Credentials struct {
	ClientID     string `json:"clientId"`
	Secret       string `json:"secret"`
	RedirectURL  string `json:"redirectUrl"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Expiry       Time   `json:"expiry"`
}

// StatusAt derives the connection status of a present credential record at
// the given wall-clock instant. Absent credentials are the caller's concern;
// this only distinguishes CONNECTED from EXPIRED.
func (c Credentials) StatusAt(now time.Time) ConnectionStatus {
	if c.Expiry.IsZero() || c.Expiry.Std().After(now) {
		return ConnectionConnected
	}
	return ConnectionExpired
}
