package dispatch

import (
	"context"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/session"
	"github.com/couchbaselabs/gocbcorex/kverr"
)

// StoreSemantics selects mutate-in's document-creation behavior (§4.1
// "insert, upsert, replace").
type StoreSemantics uint8

const (
	StoreSemanticsUpsert StoreSemantics = iota
	StoreSemanticsInsert
	StoreSemanticsReplace
)

// LookupIn performs a multi-lookup subdocument operation, transparently
// reordering XATTR specs first for the wire (§4.1 "Subdocument specs")
// and restoring the caller's original order in the result (§8 property
// 3).
func (d *Dispatcher) LookupIn(ctx context.Context, scope, collection string, key []byte, specs []kvproto.LookupSpec) ([]kvproto.LookupResult, error) {
	ordered, originalIndex := kvproto.ReorderLookupSpecs(specs)

	req := opRequest{
		Key: key, Scope: scope, Collection: collection,
		Idempotent: true, IsWrite: false,
		BuildFrame: func(collectionUID uint32) session.Frame {
			return session.Frame{
				Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpSubdocMultiLookup},
				Key:    encodedKey(collectionUID, key),
				Value:  kvproto.EncodeLookupSpecs(nil, ordered),
			}
		},
	}
	resp, err := d.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	results, err := kvproto.DecodeLookupResults(resp.Value, len(ordered))
	if err != nil {
		return nil, err
	}
	return kvproto.RestoreLookupOrder(results, originalIndex), nil
}

// MutateIn performs a multi-mutation subdocument operation, reordering
// XATTR specs first for the wire exactly as LookupIn does (§4.1).
// `insert` semantics with a non-zero CAS is a client-side programming
// error (§4.1, §9 open question (b): "preserve the client-side
// rejection" even though servers may or may not themselves reject it);
// and a server `cas_mismatch` under insert semantics is remapped to
// `document_exists` (§8 invariant 4), since "the document already
// exists" is what cas_mismatch actually means when there was never a
// CAS to match against.
func (d *Dispatcher) MutateIn(ctx context.Context, scope, collection string, key []byte, specs []kvproto.MutationSpec, semantics StoreSemantics, cas uint64, durability Durability) ([]kvproto.MutationResult, MutationResult, error) {
	if semantics == StoreSemanticsInsert && cas != 0 {
		return nil, MutationResult{}, kverr.ErrInvalidArgument
	}

	ordered, originalIndex := kvproto.ReorderMutationSpecs(specs)

	req := opRequest{
		Key: key, Scope: scope, Collection: collection,
		Idempotent: false, IsWrite: true,
		Durability: durability,
		BuildFrame: func(collectionUID uint32) session.Frame {
			return session.Frame{
				Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpSubdocMultiMutation, CAS: cas},
				Key:    encodedKey(collectionUID, key),
				Value:  kvproto.EncodeMutationSpecs(nil, ordered),
			}
		},
	}
	resp, err := d.execute(ctx, req)
	if err != nil {
		if semantics == StoreSemanticsInsert && kverr.Is(err, kverr.ErrCASMismatch) {
			return nil, MutationResult{}, kverr.ErrDocumentExists
		}
		return nil, MutationResult{}, err
	}
	results, err := kvproto.DecodeMutationResults(resp.Value)
	if err != nil {
		return nil, MutationResult{}, err
	}
	return kvproto.RestoreMutationOrder(results, originalIndex), MutationResult{CAS: resp.Header.CAS}, nil
}
