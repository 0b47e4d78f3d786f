package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(2.0, 2)

	if !limiter.Allow("api.fyers.in") {
		t.Error("first request should be allowed")
	}
	if !limiter.Allow("api.fyers.in") {
		t.Error("second request should be allowed within burst")
	}
	if limiter.Allow("api.fyers.in") {
		t.Error("third request should be blocked once burst is spent")
	}
}

func TestLimiter_HostsAreIndependent(t *testing.T) {
	limiter := NewLimiter(1.0, 1)

	if !limiter.Allow("api.fyers.in") {
		t.Error("first request to api host should be allowed")
	}
	if !limiter.Allow("socket.fyers.in") {
		t.Error("first request to socket host should be allowed")
	}
	if limiter.Allow("api.fyers.in") {
		t.Error("second request to api host should be blocked")
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewLimiter(0.1, 1) // one token every 10s

	if err := limiter.Wait(context.Background(), "api.fyers.in"); err != nil {
		t.Fatalf("first wait should be immediate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "api.fyers.in"); err == nil {
		t.Error("second wait should fail once the context deadline passes")
	}
}
