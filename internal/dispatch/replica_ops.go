package dispatch

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/session"
	"github.com/couchbaselabs/gocbcorex/kverr"
)

// ReplicaDocument is one replica (or the active) copy of a document
// returned by a replica-read fan-out (§6 "get-any-replica",
// "get-all-replicas").
type ReplicaDocument struct {
	Document
	IsActive bool
}

// getFromNode issues a single GET against the node at nodeIndex, bypassing
// the partition-owner routing Get uses, since replica reads target a
// specific replica node directly rather than whichever node currently
// owns the partition (§6).
func (d *Dispatcher) getFromNode(ctx context.Context, nodeIndex int32, collectionUID uint32, partitionID uint32, key []byte) (Document, error) {
	sess, err := d.Sessions.SessionForNode(nodeIndex)
	if err != nil {
		return Document{}, err
	}
	frame := session.Frame{
		Header: kvproto.Header{
			Magic: kvproto.MagicReq, Opcode: kvproto.OpGetReplica,
			StatusOrVBucket: uint16(partitionID),
		},
		Key: kvproto.AppendCollectionKey(nil, collectionUID, key),
	}
	resp, err := sess.Do(ctx, frame)
	if err != nil {
		return Document{}, err
	}
	status := kverr.Status(resp.Header.Status())
	if status != kverr.StatusSuccess {
		return Document{}, classify(status)
	}
	doc := Document{CAS: resp.Header.CAS}
	if len(resp.Extras) >= 4 {
		doc.Flags = binary.BigEndian.Uint32(resp.Extras[:4])
	}
	value := resp.Value
	if resp.Header.DataType.HasSnappy() {
		decompressed, derr := kvproto.Decompress(value)
		if derr != nil {
			return Document{}, derr
		}
		value = decompressed
	}
	doc.Value = value
	return doc, nil
}

// GetAnyReplica returns the first successful response from the active
// node or any replica, racing all of them and returning as soon as one
// succeeds (§6 "get-any-replica").
func (d *Dispatcher) GetAnyReplica(ctx context.Context, scope, collection string, key []byte) (ReplicaDocument, error) {
	collectionUID, err := d.Resolver.ResolveCollectionID(ctx, scope, collection)
	if err != nil {
		return ReplicaDocument{}, err
	}
	loc, err := d.Locator.Locate(key)
	if err != nil {
		return ReplicaDocument{}, err
	}

	candidates := append([]int32{loc.NodeIndex}, loc.ReplicaNodeIndices...)

	type result struct {
		doc      ReplicaDocument
		err      error
	}
	resultCh := make(chan result, len(candidates))
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, nodeIndex := range candidates {
		isActive := i == 0
		go func(nodeIndex int32, isActive bool) {
			doc, err := d.getFromNode(raceCtx, nodeIndex, collectionUID, loc.PartitionID, key)
			resultCh <- result{ReplicaDocument{Document: doc, IsActive: isActive}, err}
		}(nodeIndex, isActive)
	}

	var lastErr error = kverr.ErrDocumentIrretrievable
	for range candidates {
		r := <-resultCh
		if r.err == nil {
			return r.doc, nil
		}
		lastErr = r.err
	}
	return ReplicaDocument{}, fmt.Errorf("dispatch: no replica responded: %w", lastErr)
}

// GetAllReplicas returns every active/replica response that succeeds,
// rather than racing for the first (§6 "get-all-replicas"). Individual
// replica failures are omitted from the result rather than failing the
// whole call, since a partial replica set is still useful to callers
// comparing staleness.
func (d *Dispatcher) GetAllReplicas(ctx context.Context, scope, collection string, key []byte) ([]ReplicaDocument, error) {
	collectionUID, err := d.Resolver.ResolveCollectionID(ctx, scope, collection)
	if err != nil {
		return nil, err
	}
	loc, err := d.Locator.Locate(key)
	if err != nil {
		return nil, err
	}

	candidates := append([]int32{loc.NodeIndex}, loc.ReplicaNodeIndices...)
	type result struct {
		doc ReplicaDocument
		ok  bool
	}
	resultCh := make(chan result, len(candidates))

	for i, nodeIndex := range candidates {
		isActive := i == 0
		go func(nodeIndex int32, isActive bool) {
			doc, err := d.getFromNode(ctx, nodeIndex, collectionUID, loc.PartitionID, key)
			resultCh <- result{ReplicaDocument{Document: doc, IsActive: isActive}, err == nil}
		}(nodeIndex, isActive)
	}

	var out []ReplicaDocument
	for range candidates {
		r := <-resultCh
		if r.ok {
			out = append(out, r.doc)
		}
	}
	if len(out) == 0 {
		return nil, kverr.ErrDocumentIrretrievable
	}
	return out, nil
}
