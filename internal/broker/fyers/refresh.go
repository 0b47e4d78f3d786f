package fyers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oiscan/oiscan/internal/domain"
)

// Refresh exchanges the stored refresh token for a new access token and
// returns the updated credential record. The caller is responsible for
// saving it back so subsequent runs pick up the rotated token.
func (c *Client) Refresh(ctx context.Context, creds domain.Credentials) (domain.Credentials, error) {
	if creds.RefreshToken == "" {
		return creds, fmt.Errorf("no refresh token on file")
	}

	if err := c.limiter.Wait(ctx, c.host); err != nil {
		return creds, fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"appIdHash":     appIDHash(creds.ClientID, creds.Secret),
		"refresh_token": creds.RefreshToken,
	})
	if err != nil {
		return creds, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v3/validate-refresh-token", bytes.NewReader(payload))
	if err != nil {
		return creds, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return creds, fmt.Errorf("fyers token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return creds, fmt.Errorf("fyers token refresh decode failed: %w", err)
	}
	if out.Status != "ok" || out.AccessToken == "" {
		return creds, fmt.Errorf("fyers token refresh rejected %d: %s", out.Code, out.Message)
	}

	creds.AccessToken = out.AccessToken
	// Fyers access tokens are valid for the trading day.
	creds.Expiry = domain.FromStdTime(time.Now().Add(12 * time.Hour))

	c.log.Info().Msg("fyers access token refreshed")
	return creds, nil
}

func appIDHash(clientID, secret string) string {
	sum := sha256.Sum256([]byte(clientID + ":" + secret))
	return hex.EncodeToString(sum[:])
}
