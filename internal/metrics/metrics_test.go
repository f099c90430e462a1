package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("tsne", "converged"))

	ObserveRun("tsne", "converged", 120, 40, 15*time.Millisecond)

	after := testutil.ToFloat64(RunsTotal.WithLabelValues("tsne", "converged"))
	if after != before+1 {
		t.Errorf("expected runs counter to grow by 1, got %v -> %v", before, after)
	}
	if n := testutil.CollectAndCount(RunIterations); n == 0 {
		t.Error("expected iteration histogram to be collected")
	}
}
