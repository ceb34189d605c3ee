package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegistered(t *testing.T) {
	for name, c := range map[string]prometheus.Collector{
		"submissions": SubmissionsTotal,
		"classifier":  ClassifierRequestsTotal,
		"duration":    ClassifierRequestDuration,
		"subscribers": NotifySubscribers,
		"dropped":     NotifyEventsDropped,
		"ratelimited": RateLimitedTotal,
	} {
		if err := prometheus.Register(c); err == nil {
			t.Fatalf("%s: expected AlreadyRegisteredError, collector was not registered in init", name)
		} else if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
}

func TestSubmissionsTotal_Labels(t *testing.T) {
	before := testutil.ToFloat64(SubmissionsTotal.WithLabelValues(OutcomeCompleted))
	SubmissionsTotal.WithLabelValues(OutcomeCompleted).Inc()
	if got := testutil.ToFloat64(SubmissionsTotal.WithLabelValues(OutcomeCompleted)); got != before+1 {
		t.Fatalf("completed = %v; want %v", got, before+1)
	}
}
