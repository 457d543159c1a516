package pubfile

import (
	"testing"
	"time"
)

func fetcherCountingCalls(t *testing.T, calls *int) Fetcher {
	t.Helper()
	return func(uri string) ([]byte, error) {
		*calls++
		unsigned, _ := buildUnsignedFile(t)
		cert, key := selfSignedCert(t)
		return signAndAppend(t, unsigned, cert, key), nil
	}
}

func TestCacheReturnsSameObjectWithinTTL(t *testing.T) {
	calls := 0
	c := NewCache(fetcherCountingCalls(t, &calls), time.Minute)

	f1, err := c.Get("http://example.com/pub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	f2, err := c.Get("http://example.com/pub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f1 != f2 {
		t.Errorf("expected identical cached object, got distinct objects")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCacheZeroTTLFetchesEveryCall(t *testing.T) {
	calls := 0
	c := NewCache(fetcherCountingCalls(t, &calls), 0)

	f1, err := c.Get("http://example.com/pub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	f2, err := c.Get("http://example.com/pub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f1 == f2 {
		t.Errorf("expected distinct objects with zero TTL")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCacheURIChangeInvalidates(t *testing.T) {
	calls := 0
	c := NewCache(fetcherCountingCalls(t, &calls), time.Minute)

	if _, err := c.Get("http://example.com/a"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get("http://example.com/b"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 after uri change", calls)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	calls := 0
	c := NewCache(fetcherCountingCalls(t, &calls), 10*time.Millisecond)
	now := time.Now()
	c.clock = func() time.Time { return now }

	if _, err := c.Get("http://example.com/pub"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(20 * time.Millisecond)
	if _, err := c.Get("http://example.com/pub"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 after TTL expiry", calls)
	}
}
