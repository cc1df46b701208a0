package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue reads a counter from the default registry, 0 when absent.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRecorder(t *testing.T) {
	var r Recorder
	attempt := map[string]string{"instance": "https://a", "outcome": "success"}

	before := counterValue(t, "sdsresolve_search_attempts_total", attempt)
	r.ObserveAttempt("https://a", "success", 120*time.Millisecond)
	if got := counterValue(t, "sdsresolve_search_attempts_total", attempt); got != before+1 {
		t.Errorf("attempt counter = %v, want %v", got, before+1)
	}

	r.ObservePages("un_number", 2)
	r.ObservePages("un_number", 0)
	if got := counterValue(t, "sdsresolve_enrichment_pages_total", map[string]string{"field": "un_number"}); got != 2 {
		t.Errorf("pages counter = %v, want 2", got)
	}

	r.ObserveCache("hit")
	r.ObserveSearch("ok")
	r.ObserveResolution("un_number", "answer")
	if got := counterValue(t, "sdsresolve_field_resolutions_total", map[string]string{"field": "un_number", "origin": "answer"}); got != 1 {
		t.Errorf("resolution counter = %v, want 1", got)
	}
}
