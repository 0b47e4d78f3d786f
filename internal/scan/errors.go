package scan

import (
	"errors"
	"fmt"
	"time"
)

// Precondition errors carry the exact phrases the dashboard pattern-matches
// to route users to remediation, so the wording is part of the contract.
var (
	ErrNoCredentials      = errors.New("No Fyers credentials configured; connect your broker account in settings")
	ErrCredentialsExpired = errors.New("Fyers credentials expired; update your access token in settings")
	ErrNoSymbolList       = errors.New("No symbol list configured; upload a symbol universe in settings")
)

// RateLimitError rejects a scan attempted inside the cooldown window or
// while another run is in flight. Remaining is the wait before the next run
// is admitted.
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Rate limit: next scan allowed in %s", e.Remaining.Round(time.Second))
}

// IsRateLimited reports whether err is a scan rate-limit rejection.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
