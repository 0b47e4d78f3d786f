package domain

import "time"

// Time is a nanosecond-precision Unix timestamp, matching the wire contract
// the dashboard consumes. Keeping it a fixed-width integer avoids precision
// loss when round-tripping through JSON; conversion helpers bridge to the
// millisecond-based clocks the UI renders with.
type Time int64

// Now returns the current instant.
func Now() Time {
	return Time(time.Now().UnixNano())
}

// FromStdTime converts a time.Time.
func FromStdTime(t time.Time) Time {
	if t.IsZero() {
		return 0
	}
	return Time(t.UnixNano())
}

// Std converts back to a time.Time in UTC.
func (t Time) Std() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// UnixMilli truncates to millisecond epoch, the form human-readable
// timestamps are derived from.
func (t Time) UnixMilli() int64 {
	return int64(t) / int64(time.Millisecond)
}

// IsZero reports whether t is the zero instant, used to encode "no expiry"
// on credentials.
func (t Time) IsZero() bool {
	return t == 0
}
