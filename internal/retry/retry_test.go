package retry

import (
	"testing"
	"time"

	"github.com/couchbaselabs/gocbcorex/kverr"
)

// TestControlledBackoffTable covers §8 property 7.
func TestControlledBackoffTable(t *testing.T) {
	want := []time.Duration{
		1 * time.Millisecond,
		10 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		500 * time.Millisecond,
	}
	for attempt, w := range want {
		if got := ControlledBackoff(attempt); got != w {
			t.Errorf("ControlledBackoff(%d) = %v, want %v", attempt, got, w)
		}
	}
	for _, attempt := range []int{5, 6, 100} {
		if got := ControlledBackoff(attempt); got != time.Second {
			t.Errorf("ControlledBackoff(%d) = %v, want 1s", attempt, got)
		}
	}
}

// TestExponentialBackoffMonotone covers §8 property 8.
func TestExponentialBackoffMonotone(t *testing.T) {
	p := ExponentialBackoffParams{Min: 1 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2}
	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		got := ExponentialBackoff(attempt, p)
		if got < p.Min || got > p.Max {
			t.Fatalf("attempt %d: %v out of bounds [%v,%v]", attempt, got, p.Min, p.Max)
		}
		if got < prev {
			t.Fatalf("attempt %d: backoff decreased from %v to %v", attempt, prev, got)
		}
		prev = got
	}
}

func TestAlwaysRetryReasons(t *testing.T) {
	for _, r := range []Reason{ReasonNotMyVBucket, ReasonCollectionOutdated, ReasonViewsNoActivePartition} {
		if !r.AlwaysRetry() {
			t.Errorf("%v should always retry", r)
		}
		if !r.AllowsNonIdempotentRetry() {
			t.Errorf("%v should allow non-idempotent retry (always-retry implies it)", r)
		}
	}
}

func TestNotMyVBucketSingleRetryPerDecision(t *testing.T) {
	// §8 property 11 (boundary): a not-my-vbucket classification produces
	// exactly one retry decision per call. The dispatcher calls Decide
	// again on each further not-my-vbucket attempt until the strategy
	// gives up; it does not wait for a new map between attempts.
	s := NewBestEffortRetryStrategy()
	d := s.Decide(ReasonNotMyVBucket, Request{DeadlineRemaining: time.Second})
	if !d.Retry {
		t.Fatal("expected a retry decision")
	}
	if d.Delay != ControlledBackoff(0) {
		t.Errorf("delay = %v, want %v", d.Delay, ControlledBackoff(0))
	}
}

func TestDeadlineExceededConvertsToTimeout(t *testing.T) {
	s := NewBestEffortRetryStrategy()

	d := s.Decide(ReasonKVTemporaryFailure, Request{DeadlineRemaining: 0, IsWrite: true})
	if d.Retry {
		t.Fatal("expected give-up when deadline has no room for backoff")
	}
	if d.GiveUpErr != kverr.ErrAmbiguousTimeout {
		t.Errorf("write timeout = %v, want ambiguous_timeout", d.GiveUpErr)
	}

	d = s.Decide(ReasonKVTemporaryFailure, Request{DeadlineRemaining: 0, IsWrite: false})
	if d.GiveUpErr != kverr.ErrUnambiguousTimeout {
		t.Errorf("read timeout = %v, want unambiguous_timeout", d.GiveUpErr)
	}
}

func TestNonIdempotentSocketErrorRetriesWithoutFlag(t *testing.T) {
	// ReasonSocketNotAvailable is in the allows-non-idempotent-retry
	// table (§4.5), so it retries regardless of Idempotent.
	s := NewBestEffortRetryStrategy()
	d := s.Decide(ReasonSocketNotAvailable, Request{Idempotent: false, DeadlineRemaining: time.Second})
	if !d.Retry {
		t.Fatal("socket_not_available should retry even for non-idempotent requests")
	}
}

func TestFailFastNeverRetries(t *testing.T) {
	s := FailFastRetryStrategy{}
	d := s.Decide(ReasonNotMyVBucket, Request{DeadlineRemaining: time.Second})
	if d.Retry {
		t.Fatal("FailFastRetryStrategy must never retry")
	}
}
