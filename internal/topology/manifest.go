package topology

import (
	"context"
	"sync"
	"time"
)

// ManifestTracker holds the latest observed collection-manifest UID for a
// bucket and lets callers wait for it to reach at least a given value
// (§4.4 "Collection manifest"). A newer manifest UID taken from a
// GET_COLLECTION_ID response's extras advances the tracker; a collection
// lookup that reports a stale manifest blocks in AwaitAtLeast until either
// the manifest catches up or the deadline elapses (§4.4, §8 invariant 5).
//
// Grounded on the bootstrap/steady-state wait pattern in
// other_examples/b4e3761a_rodaine-franz-go__pkg-kgo-metadata.go, which
// parks a goroutine on a condition variable until a newer metadata
// generation is observed.
type ManifestTracker struct {
	mu   sync.Mutex
	ch   chan struct{}
	uid  uint64
}

// NewManifestTracker returns a tracker starting at manifest UID 0.
func NewManifestTracker() *ManifestTracker {
	return &ManifestTracker{ch: make(chan struct{})}
}

// Observe records a manifest UID seen on a response, waking any waiters
// if it advances the tracked value (§4.4 "apply the manifest UID
// monotonically").
func (t *ManifestTracker) Observe(uid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uid <= t.uid {
		return
	}
	t.uid = uid
	close(t.ch)
	t.ch = make(chan struct{})
}

// Current returns the latest observed manifest UID.
func (t *ManifestTracker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uid
}

// AwaitAtLeast blocks until the tracked manifest UID is >= uid, ctx is
// done, or deadline elapses, whichever comes first (§4.4
// "awaitManifestAtLeast", §8 invariant 5: this is the only place an
// in-flight operation blocks on manifest state rather than failing
// immediately).
func (t *ManifestTracker) AwaitAtLeast(ctx context.Context, uid uint64, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		if t.uid >= uid {
			t.mu.Unlock()
			return nil
		}
		waitCh := t.ch
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errManifestWaitTimedOut
		case <-waitCh:
			// loop and re-check t.uid
		}
	}
}

var errManifestWaitTimedOut = manifestWaitError{}

type manifestWaitError struct{}

func (manifestWaitError) Error() string { return "topology: timed out waiting for collection manifest" }
