package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowFallbackWithinCap(t *testing.T) {
	l := New(nil, []Window{{Name: "minute", Period: time.Minute, Max: 3}})

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(context.Background(), "caller-1")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed within cap", i+1)
		}
	}
}

func TestAllowFallbackOverCap(t *testing.T) {
	l := New(nil, []Window{{Name: "minute", Period: time.Minute, Max: 2}})

	for i := 0; i < 2; i++ {
		if _, _, err := l.Allow(context.Background(), "caller-2"); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	allowed, retryAfter, err := l.Allow(context.Background(), "caller-2")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request in a cap-of-2 window to be denied")
	}
	if retryAfter <= 0 {
		t.Fatal("expected a positive retry-after duration once denied")
	}
}

func TestAllowFallbackResetsAfterWindow(t *testing.T) {
	l := New(nil, []Window{{Name: "tick", Period: 20 * time.Millisecond, Max: 1}})

	if allowed, _, _ := l.Allow(context.Background(), "caller-3"); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := l.Allow(context.Background(), "caller-3"); allowed {
		t.Fatal("second request within the window should be denied")
	}

	time.Sleep(30 * time.Millisecond)
	if allowed, _, _ := l.Allow(context.Background(), "caller-3"); !allowed {
		t.Fatal("request after the window rolled over should be allowed again")
	}
}

func TestAllowFallbackKeysAreIndependent(t *testing.T) {
	l := New(nil, []Window{{Name: "minute", Period: time.Minute, Max: 1}})

	if allowed, _, _ := l.Allow(context.Background(), "caller-a"); !allowed {
		t.Fatal("caller-a's first request should be allowed")
	}
	if allowed, _, _ := l.Allow(context.Background(), "caller-b"); !allowed {
		t.Fatal("caller-b's first request should be allowed independently of caller-a")
	}
}
