package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAllowUnlimited(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if !l.Allow("hooks.example.com", 0) {
			t.Fatal("Allow(0) should always return true")
		}
	}
	if d := l.RetryAfter("hooks.example.com", 0); d != 0 {
		t.Fatalf("RetryAfter(0) = %v, want 0", d)
	}
}

func TestAllowRateLimited(t *testing.T) {
	l := New()
	host := "limited.example.com"

	if !l.Allow(host, 2) || !l.Allow(host, 2) {
		t.Fatal("bucket should start full")
	}
	if l.Allow(host, 2) {
		t.Fatal("third call should be denied")
	}

	// Other hosts have their own bucket.
	if !l.Allow("other.example.com", 2) {
		t.Fatal("other host should be allowed")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()
	host := "refill.example.com"

	for i := 0; i < 10; i++ {
		l.Allow(host, 10)
	}
	if l.Allow(host, 10) {
		t.Fatal("should be denied after exhausting bucket")
	}

	time.Sleep(200 * time.Millisecond)

	if !l.Allow(host, 10) {
		t.Fatal("should be allowed after refill")
	}
}

func TestRetryAfter(t *testing.T) {
	l := New()
	host := "wait.example.com"

	if d := l.RetryAfter(host, 1); d != 0 {
		t.Fatalf("fresh bucket RetryAfter = %v, want 0", d)
	}
	l.Allow(host, 1)

	d := l.RetryAfter(host, 1)
	if d <= 0 || d > time.Second {
		t.Fatalf("RetryAfter = %v, want within (0, 1s]", d)
	}
}

func TestReset(t *testing.T) {
	l := New()
	host := "reset.example.com"

	l.Allow(host, 1)
	if l.Allow(host, 1) {
		t.Fatal("should be denied")
	}

	l.Reset(host)

	if !l.Allow(host, 1) {
		t.Fatal("should be allowed after reset")
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New()
	host := "concurrent.example.com"

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow(host, 100)
		}()
	}

	wg.Wait()
	close(allowed)

	n := 0
	for v := range allowed {
		if v {
			n++
		}
	}

	if n > 105 {
		t.Fatalf("expected about 100 allowed, got %d", n)
	}
	if n < 90 {
		t.Fatalf("expected at least 90 allowed, got %d", n)
	}
}
