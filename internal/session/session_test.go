package session

import (
	"net"
	"testing"
	"time"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	want := Frame{
		Header: kvproto.Header{
			Magic:  kvproto.MagicReq,
			Opcode: kvproto.OpSet,
			Opaque: 42,
			CAS:    7,
		},
		Extras: []byte{0, 0, 0, 0, 0, 0, 0, 0},
		Key:    []byte("k"),
		Value:  []byte("v"),
	}

	done := make(chan error, 1)
	go func() { done <- writeFrame(client, want) }()

	got, err := readFrame(server)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if got.Header.Opcode != want.Header.Opcode || got.Header.Opaque != want.Header.Opaque {
		t.Errorf("header mismatch: got %+v, want %+v", got.Header, want.Header)
	}
	if string(got.Key) != "k" || string(got.Value) != "v" {
		t.Errorf("key/value mismatch: key=%q value=%q", got.Key, got.Value)
	}
}

func TestPendingTableCompleteUnknownOpaque(t *testing.T) {
	pt := newPendingTable()
	if pt.complete(999, Frame{}, nil) {
		t.Fatal("complete on unregistered opaque should report false")
	}
}

func TestPendingTableExpireBefore(t *testing.T) {
	pt := newPendingTable()
	resultCh := make(chan error, 1)
	pt.register(&pendingRequest{
		opaque:   1,
		deadline: time.Now().Add(-time.Second),
		promise: func(f Frame, err error) {
			resultCh <- err
		},
	})

	next := pt.expireBefore(time.Now(), errRequestDeadlineExceeded)
	if !next.IsZero() {
		t.Fatalf("expected no remaining deadlines, got %v", next)
	}
	select {
	case err := <-resultCh:
		if err != errRequestDeadlineExceeded {
			t.Errorf("err = %v, want errRequestDeadlineExceeded", err)
		}
	default:
		t.Fatal("expected expired request to resolve its promise")
	}
}

func TestPendingTableDrainAll(t *testing.T) {
	pt := newPendingTable()
	var got []error
	for i := uint32(0); i < 3; i++ {
		pt.register(&pendingRequest{
			opaque:   i,
			deadline: time.Now().Add(time.Minute),
			promise: func(f Frame, err error) {
				got = append(got, err)
			},
		})
	}
	pt.drainAll(ErrSessionClosed)
	if len(got) != 3 {
		t.Fatalf("expected 3 drained requests, got %d", len(got))
	}
	for _, err := range got {
		if err != ErrSessionClosed {
			t.Errorf("err = %v, want ErrSessionClosed", err)
		}
	}
}

func TestErrorMapClassifyUnknownStatus(t *testing.T) {
	em := &ErrorMap{
		Errors: map[string]ErrorMapEntry{
			"1f": {Name: "too busy", Attributes: []ErrorMapAttribute{AttrTemp, AttrRetryLater}},
			"20": {Name: "access denied", Attributes: []ErrorMapAttribute{AttrAuth, AttrConnStateInvalidated}},
		},
	}

	reason, retriable := em.ClassifyUnknownStatus(0x1f)
	if !retriable {
		t.Fatal("retry-later attribute should be retriable")
	}
	_ = reason

	_, retriable = em.ClassifyUnknownStatus(0x20)
	if retriable {
		t.Fatal("conn-state-invalidated/auth must never retry")
	}

	_, retriable = em.ClassifyUnknownStatus(0xff)
	if retriable {
		t.Fatal("unmapped status must not retry")
	}
}
