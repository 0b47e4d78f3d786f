package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTime_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Nanosecond)
	dt := FromStdTime(now)
	assert.Equal(t, now.UnixNano(), int64(dt))
	assert.True(t, dt.Std().Equal(now))
}

func TestTime_UnixMilli(t *testing.T) {
	dt := Time(1_700_000_000_123_456_789)
	assert.Equal(t, int64(1_700_000_000_123), dt.UnixMilli())
}

func TestTime_ZeroMeansNoExpiry(t *testing.T) {
	assert.True(t, Time(0).IsZero())
	assert.True(t, FromStdTime(time.Time{}).IsZero())

	creds := Credentials{AccessToken: "tok"}
	assert.Equal(t, ConnectionConnected, creds.StatusAt(time.Now()))
}

func TestCredentials_StatusAt(t *testing.T) {
	now := time.Now()

	creds := Credentials{Expiry: FromStdTime(now.Add(time.Hour))}
	assert.Equal(t, ConnectionConnected, creds.StatusAt(now))

	creds.Expiry = FromStdTime(now.Add(-time.Hour))
	assert.Equal(t, ConnectionExpired, creds.StatusAt(now))

	// Boundary: expiry exactly now counts as expired.
	creds.Expiry = FromStdTime(now)
	assert.Equal(t, ConnectionExpired, creds.StatusAt(now))
}
