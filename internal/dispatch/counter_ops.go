package dispatch

import (
	"context"
	"encoding/binary"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/session"
)

// CounterResult is the outcome of an increment/decrement (§6).
type CounterResult struct {
	Value uint64
	CAS   uint64
}

// noCreateExpiry is the memcached-protocol sentinel expiry value that
// tells the server not to create the counter document if it's missing,
// failing with key_not_found instead of seeding it with initial (§6,
// §8 invariant 5: "increment/decrement without an initial value never
// creates a document").
const noCreateExpiry uint32 = 0xffffffff

// counterExtras builds the 20-byte delta+initial+expiry extras INCREMENT
// and DECREMENT share (§6).
func counterExtras(delta, initial uint64, expiry uint32) []byte {
	extras := make([]byte, 20)
	binary.BigEndian.PutUint64(extras[0:8], delta)
	binary.BigEndian.PutUint64(extras[8:16], initial)
	binary.BigEndian.PutUint32(extras[16:20], expiry)
	return extras
}

func counterOp(d *Dispatcher, ctx context.Context, opcode kvproto.Opcode, scope, collection string, key []byte, delta, initial uint64, hasInitial bool, expiry uint32, durability Durability) (CounterResult, error) {
	wireExpiry := expiry
	if !hasInitial {
		wireExpiry = noCreateExpiry
		initial = 0
	}
	req := opRequest{
		Key: key, Scope: scope, Collection: collection,
		Idempotent: true, IsWrite: true,
		Durability: durability,
		BuildFrame: func(collectionUID uint32) session.Frame {
			return session.Frame{
				Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: opcode},
				Extras: counterExtras(delta, initial, wireExpiry),
				Key:    encodedKey(collectionUID, key),
			}
		},
	}
	resp, err := d.execute(ctx, req)
	if err != nil {
		return CounterResult{}, err
	}
	var value uint64
	if len(resp.Value) >= 8 {
		value = binary.BigEndian.Uint64(resp.Value[:8])
	}
	return CounterResult{Value: value, CAS: resp.Header.CAS}, nil
}

// Increment atomically adds delta to a counter document. If hasInitial is
// false, a missing document is never created and surfaces
// document_not_found instead (§6 "increment", §8 invariant 5); otherwise
// a missing document is seeded with initial.
func (d *Dispatcher) Increment(ctx context.Context, scope, collection string, key []byte, delta, initial uint64, hasInitial bool, expiry uint32, durability Durability) (CounterResult, error) {
	return counterOp(d, ctx, kvproto.OpIncrement, scope, collection, key, delta, initial, hasInitial, expiry, durability)
}

// Decrement atomically subtracts delta from a counter document, with the
// same create-if-missing semantics as Increment (§6 "decrement").
func (d *Dispatcher) Decrement(ctx context.Context, scope, collection string, key []byte, delta, initial uint64, hasInitial bool, expiry uint32, durability Durability) (CounterResult, error) {
	return counterOp(d, ctx, kvproto.OpDecrement, scope, collection, key, delta, initial, hasInitial, expiry, durability)
}
