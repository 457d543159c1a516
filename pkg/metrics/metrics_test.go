package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveVerificationIncrementsLabeledCounter(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.ObserveVerification("general", "OK", "")
	c.ObserveVerification("general", "OK", "")
	c.ObserveVerification("general", "FAIL", "GEN-1")

	if got := counterValue(t, c.VerificationsTotal.WithLabelValues("general", "OK", "")); got != 2 {
		t.Fatalf("OK count = %v, want 2", got)
	}
	if got := counterValue(t, c.VerificationsTotal.WithLabelValues("general", "FAIL", "GEN-1")); got != 1 {
		t.Fatalf("FAIL count = %v, want 1", got)
	}
}

func TestObserveCacheTracksHitsAndMissesSeparately(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.ObserveCache(true)
	c.ObserveCache(true)
	c.ObserveCache(false)

	if got := counterValue(t, c.PubfileCacheHits); got != 2 {
		t.Fatalf("hits = %v, want 2", got)
	}
	if got := counterValue(t, c.PubfileCacheMisses); got != 1 {
		t.Fatalf("misses = %v, want 1", got)
	}
}

func TestNilCollectorsAreNoOp(t *testing.T) {
	var c *Collectors
	c.ObserveVerification("general", "OK", "")
	c.ObserveRequest("sign", "ok", 0.1)
	c.ObserveCache(true)
}
