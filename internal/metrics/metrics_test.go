package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderObservesRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRequest("get", "success", 2*time.Millisecond)

	if got := testutil.ToFloat64(r.requests.WithLabelValues("get", "success")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestRecorderNilIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveRequest("get", "success", time.Millisecond)
	r.ObserveRetry("backoff")
	r.ObserveDispatchError("timeout")
	r.SetActiveSessions(3)
}

func TestRecorderObservesRetryReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRetry("key_value_not_my_vbucket")

	if got := testutil.ToFloat64(r.retries.WithLabelValues("key_value_not_my_vbucket")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}
