package dispatch

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/couchbaselabs/gocbcorex/internal/retry"
	"github.com/couchbaselabs/gocbcorex/kverr"
)

type fakeResolver struct {
	uid uint32
	err error
}

func (f fakeResolver) ResolveCollectionID(ctx context.Context, scope, collection string) (uint32, error) {
	return f.uid, f.err
}

// A missing scope is surfaced as-is: no amount of retrying invents a
// scope, so the dispatcher should never mask it behind a timeout.
func TestExecuteSurfacesScopeNotFoundImmediately(t *testing.T) {
	d := &Dispatcher{Resolver: fakeResolver{err: kverr.ErrScopeNotFound}, Strategy: retry.FailFastRetryStrategy{}}
	_, err := d.execute(context.Background(), opRequest{Key: []byte("k")})
	if err != kverr.ErrScopeNotFound {
		t.Fatalf("err = %v, want ErrScopeNotFound", err)
	}
}

// A missing collection looks identical to a manifest that hasn't caught
// up yet, so the dispatcher retries it like any other outdated-manifest
// condition and, once the strategy gives up, surfaces a timeout rather
// than collection_not_found (§8 S6).
func TestExecuteRetriesCollectionNotFoundThenTimesOut(t *testing.T) {
	d := &Dispatcher{Resolver: fakeResolver{err: kverr.ErrCollectionNotFound}, Strategy: retry.FailFastRetryStrategy{}}
	_, err := d.execute(context.Background(), opRequest{Key: []byte("k")})
	if !kverr.Is(err, kverr.ErrUnambiguousTimeout) {
		t.Fatalf("err = %v, want ErrUnambiguousTimeout", err)
	}
}

func TestMutationExtrasEncoding(t *testing.T) {
	extras := mutationExtras(0xdeadbeef, 0x12345678)
	if len(extras) != 8 {
		t.Fatalf("len = %d, want 8", len(extras))
	}
	if got := binary.BigEndian.Uint32(extras[0:4]); got != 0xdeadbeef {
		t.Errorf("flags = %x, want deadbeef", got)
	}
	if got := binary.BigEndian.Uint32(extras[4:8]); got != 0x12345678 {
		t.Errorf("expiry = %x, want 12345678", got)
	}
}

func TestCounterExtrasEncoding(t *testing.T) {
	extras := counterExtras(5, 100, 60)
	if len(extras) != 20 {
		t.Fatalf("len = %d, want 20", len(extras))
	}
	if got := binary.BigEndian.Uint64(extras[0:8]); got != 5 {
		t.Errorf("delta = %d, want 5", got)
	}
	if got := binary.BigEndian.Uint64(extras[8:16]); got != 100 {
		t.Errorf("initial = %d, want 100", got)
	}
	if got := binary.BigEndian.Uint32(extras[16:20]); got != 60 {
		t.Errorf("expiry = %d, want 60", got)
	}
}

func TestClassifyKnownAndUnknownStatus(t *testing.T) {
	if err := classify(kverr.StatusKeyNotFound); err != kverr.ErrDocumentNotFound {
		t.Errorf("classify(KeyNotFound) = %v, want ErrDocumentNotFound", err)
	}
	if err := classify(kverr.Status(0xfd)); err != kverr.ErrTemporaryFailure {
		t.Errorf("classify(unknown) = %v, want ErrTemporaryFailure fallback", err)
	}
}

func TestReasonForErrorMapsRetriableKVErrors(t *testing.T) {
	if _, ok := reasonForError(kverr.ErrDocumentLocked); !ok {
		t.Error("ErrDocumentLocked should map to a retry reason")
	}
	if _, ok := reasonForError(kverr.ErrDocumentNotFound); ok {
		t.Error("ErrDocumentNotFound should not be retriable")
	}
}

func TestMutateInInsertWithNonZeroCASIsRejectedClientSide(t *testing.T) {
	d := &Dispatcher{}
	_, _, err := d.MutateIn(context.Background(), "", "", []byte("k"), nil, StoreSemanticsInsert, 42, Durability{})
	if err != kverr.ErrInvalidArgument {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
