package dispatch

import (
	"context"
	"encoding/binary"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/session"
)

// Document is a successfully retrieved document: its value, flags, and
// CAS.
type Document struct {
	Value []byte
	Flags uint32
	CAS   uint64
}

// MutationResult is the outcome of a successful mutation.
type MutationResult struct {
	CAS uint64
}

func encodedKey(collectionUID uint32, key []byte) []byte {
	return kvproto.AppendCollectionKey(nil, collectionUID, key)
}

// Get performs a single-document fetch (§6 "get").
func (d *Dispatcher) Get(ctx context.Context, scope, collection string, key []byte) (Document, error) {
	req := opRequest{
		Key: key, Scope: scope, Collection: collection,
		Idempotent: true, IsWrite: false,
		BuildFrame: func(collectionUID uint32) session.Frame {
			return session.Frame{
				Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpGet},
				Key:    encodedKey(collectionUID, key),
			}
		},
	}
	resp, err := d.execute(ctx, req)
	if err != nil {
		return Document{}, err
	}
	doc := Document{CAS: resp.Header.CAS}
	if len(resp.Extras) >= 4 {
		doc.Flags = binary.BigEndian.Uint32(resp.Extras[:4])
	}
	value := resp.Value
	dataType := resp.Header.DataType
	if dataType.HasSnappy() {
		decompressed, err := kvproto.Decompress(value)
		if err != nil {
			return Document{}, err
		}
		value = decompressed
	}
	doc.Value = value
	return doc, nil
}

// mutationExtras builds the 8-byte flags+expiry extras shared by
// set/add/replace (§6).
func mutationExtras(flags uint32, expiry uint32) []byte {
	extras := make([]byte, 8)
	binary.BigEndian.PutUint32(extras[0:4], flags)
	binary.BigEndian.PutUint32(extras[4:8], expiry)
	return extras
}

func storeOp(d *Dispatcher, ctx context.Context, opcode kvproto.Opcode, scope, collection string, key, value []byte, flags, expiry uint32, cas uint64, durability Durability) (MutationResult, error) {
	req := opRequest{
		Key: key, Scope: scope, Collection: collection,
		Idempotent: opcode != kvproto.OpAdd, IsWrite: true,
		Durability: durability,
		BuildFrame: func(collectionUID uint32) session.Frame {
			wireValue := value
			dataType := kvproto.DataType(0)
			if kvproto.ShouldCompress(opcode, len(value), true) {
				wireValue = kvproto.Compress(value)
				dataType |= kvproto.DataTypeSnappy
			}
			return session.Frame{
				Header: kvproto.Header{
					Magic: kvproto.MagicReq, Opcode: opcode, CAS: cas, DataType: dataType,
				},
				Extras: mutationExtras(flags, expiry),
				Key:    encodedKey(collectionUID, key),
				Value:  wireValue,
			}
		},
	}
	resp, err := d.execute(ctx, req)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{CAS: resp.Header.CAS}, nil
}

// Set performs an unconditional upsert (§6 "set").
func (d *Dispatcher) Set(ctx context.Context, scope, collection string, key, value []byte, flags, expiry uint32, durability Durability) (MutationResult, error) {
	return storeOp(d, ctx, kvproto.OpSet, scope, collection, key, value, flags, expiry, 0, durability)
}

// Add performs an insert that fails if the document already exists (§6
// "add", §8 invariant "insert with non-zero CAS is rejected client-side
// before it is ever sent").
func (d *Dispatcher) Add(ctx context.Context, scope, collection string, key, value []byte, flags, expiry uint32, durability Durability) (MutationResult, error) {
	return storeOp(d, ctx, kvproto.OpAdd, scope, collection, key, value, flags, expiry, 0, durability)
}

// Replace performs a CAS-guarded (or unconditional, if cas==0) replace
// (§6 "replace").
func (d *Dispatcher) Replace(ctx context.Context, scope, collection string, key, value []byte, flags, expiry uint32, cas uint64, durability Durability) (MutationResult, error) {
	return storeOp(d, ctx, kvproto.OpReplace, scope, collection, key, value, flags, expiry, cas, durability)
}

// Delete removes a document, optionally CAS-guarded (§6 "delete").
func (d *Dispatcher) Delete(ctx context.Context, scope, collection string, key []byte, cas uint64, durability Durability) (MutationResult, error) {
	req := opRequest{
		Key: key, Scope: scope, Collection: collection,
		Idempotent: true, IsWrite: true,
		Durability: durability,
		BuildFrame: func(collectionUID uint32) session.Frame {
			return session.Frame{
				Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpDelete, CAS: cas},
				Key:    encodedKey(collectionUID, key),
			}
		},
	}
	resp, err := d.execute(ctx, req)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{CAS: resp.Header.CAS}, nil
}

// appendPrependOp implements append/prepend, which carry no flags/expiry
// extras on the wire (§6 "append"/"prepend").
func appendPrependOp(d *Dispatcher, ctx context.Context, opcode kvproto.Opcode, scope, collection string, key, value []byte, cas uint64, durability Durability) (MutationResult, error) {
	req := opRequest{
		Key: key, Scope: scope, Collection: collection,
		Idempotent: false, IsWrite: true,
		Durability: durability,
		BuildFrame: func(collectionUID uint32) session.Frame {
			return session.Frame{
				Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: opcode, CAS: cas},
				Key:    encodedKey(collectionUID, key),
				Value:  value,
			}
		},
	}
	resp, err := d.execute(ctx, req)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{CAS: resp.Header.CAS}, nil
}

// Append appends value to an existing document's body (§6 "append").
func (d *Dispatcher) Append(ctx context.Context, scope, collection string, key, value []byte, cas uint64, durability Durability) (MutationResult, error) {
	return appendPrependOp(d, ctx, kvproto.OpAppend, scope, collection, key, value, cas, durability)
}

// Prepend prepends value to an existing document's body (§6 "prepend").
func (d *Dispatcher) Prepend(ctx context.Context, scope, collection string, key, value []byte, cas uint64, durability Durability) (MutationResult, error) {
	return appendPrependOp(d, ctx, kvproto.OpPrepend, scope, collection, key, value, cas, durability)
}
