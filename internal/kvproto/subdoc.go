package kvproto

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// SubdocOpcode is the per-spec opcode inside a multi-lookup or
// multi-mutation body (distinct from the outer Opcode, which is always
// OpSubdocMultiLookup/OpSubdocMultiMutation).
type SubdocOpcode uint8

const (
	SubdocGet          SubdocOpcode = 0xc5
	SubdocExists       SubdocOpcode = 0xc6
	SubdocGetCount     SubdocOpcode = 0xd2
	SubdocDictAdd      SubdocOpcode = 0xc7
	SubdocDictUpsert   SubdocOpcode = 0xc8
	SubdocDelete       SubdocOpcode = 0xc9
	SubdocReplace      SubdocOpcode = 0xca
	SubdocArrayPushLast  SubdocOpcode = 0xcb
	SubdocArrayPushFirst SubdocOpcode = 0xcc
	SubdocArrayInsert    SubdocOpcode = 0xcd
	SubdocArrayAddUnique SubdocOpcode = 0xce
	SubdocCounter        SubdocOpcode = 0xcf
)

// SubdocPathFlagXattr marks a spec's path as targeting an extended
// attribute rather than the document body (§4.1 "Subdocument specs").
const SubdocPathFlagXattr uint8 = 0x04

// LookupSpec is one entry in a multi-lookup request.
type LookupSpec struct {
	Op    SubdocOpcode
	Flags uint8
	Path  string
}

// MutationSpec is one entry in a multi-mutation request.
type MutationSpec struct {
	Op    SubdocOpcode
	Flags uint8
	Path  string
	Value []byte
}

func isXattrFlag(flags uint8) bool { return flags&SubdocPathFlagXattr != 0 }

// ReorderLookupSpecs returns specs reordered so that XATTR paths precede
// document-body paths, along with a slice giving, for each position in the
// returned order, the original index in specs. The codec MUST do this
// (§4.1); callers use the returned index slice to restore the caller's
// original order before delivering results (§8 property 3).
func ReorderLookupSpecs(specs []LookupSpec) (ordered []LookupSpec, originalIndex []int) {
	idx := make([]int, len(specs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ai, bi := isXattrFlag(specs[idx[a]].Flags), isXattrFlag(specs[idx[b]].Flags)
		if ai == bi {
			return false
		}
		return ai && !bi
	})
	ordered = make([]LookupSpec, len(specs))
	for i, oi := range idx {
		ordered[i] = specs[oi]
	}
	return ordered, idx
}

// ReorderMutationSpecs is ReorderLookupSpecs's mutation-spec counterpart.
func ReorderMutationSpecs(specs []MutationSpec) (ordered []MutationSpec, originalIndex []int) {
	idx := make([]int, len(specs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ai, bi := isXattrFlag(specs[idx[a]].Flags), isXattrFlag(specs[idx[b]].Flags)
		if ai == bi {
			return false
		}
		return ai && !bi
	})
	ordered = make([]MutationSpec, len(specs))
	for i, oi := range idx {
		ordered[i] = specs[oi]
	}
	return ordered, idx
}

// EncodeLookupSpecs appends the wire form of specs (already reordered) to
// dst: a sequence of {opcode, flags, path_len(2), path} entries.
func EncodeLookupSpecs(dst []byte, specs []LookupSpec) []byte {
	for _, s := range specs {
		dst = append(dst, byte(s.Op), s.Flags)
		var pl [2]byte
		binary.BigEndian.PutUint16(pl[:], uint16(len(s.Path)))
		dst = append(dst, pl[:]...)
		dst = append(dst, s.Path...)
	}
	return dst
}

// EncodeMutationSpecs appends the wire form of specs (already reordered)
// to dst: a sequence of {opcode, flags, path_len(2), value_len(4), path,
// value} entries.
func EncodeMutationSpecs(dst []byte, specs []MutationSpec) []byte {
	for _, s := range specs {
		dst = append(dst, byte(s.Op), s.Flags)
		var pl [2]byte
		binary.BigEndian.PutUint16(pl[:], uint16(len(s.Path)))
		dst = append(dst, pl[:]...)
		var vl [4]byte
		binary.BigEndian.PutUint32(vl[:], uint32(len(s.Value)))
		dst = append(dst, vl[:]...)
		dst = append(dst, s.Path...)
		dst = append(dst, s.Value...)
	}
	return dst
}

// LookupResult is one result entry from a multi-lookup response.
type LookupResult struct {
	Status uint16
	Value  []byte
}

// DecodeLookupResults parses a multi-lookup response body: a sequence of
// {status(2), value_len(4), value} entries, one per spec, in the order the
// specs were sent on the wire (i.e. reordered order; callers restore the
// caller's original order via the index returned at encode time).
func DecodeLookupResults(body []byte, count int) ([]LookupResult, error) {
	out := make([]LookupResult, 0, count)
	for i := 0; i < count; i++ {
		if len(body) < 6 {
			return nil, fmt.Errorf("kvproto: truncated subdoc lookup result %d", i)
		}
		status := binary.BigEndian.Uint16(body[0:2])
		vlen := binary.BigEndian.Uint32(body[2:6])
		body = body[6:]
		if uint32(len(body)) < vlen {
			return nil, fmt.Errorf("kvproto: truncated subdoc lookup value %d", i)
		}
		out = append(out, LookupResult{Status: status, Value: body[:vlen:vlen]})
		body = body[vlen:]
	}
	return out, nil
}

// MutationResult is one result entry from a multi-mutation response. Per
// the protocol, only specs that produced a value (e.g. counter deltas) or
// an error carry an entry; Index is the spec's position on the wire
// (reordered) until RestoreMutationOrder remaps it back to the caller's
// original spec order.
type MutationResult struct {
	Index  uint8
	Status uint16
	Value  []byte
}

// DecodeMutationResults parses a multi-mutation response body: a sequence
// of {index(1), status(2), [value_len(4), value] if status==success}
// entries.
func DecodeMutationResults(body []byte) ([]MutationResult, error) {
	var out []MutationResult
	for len(body) > 0 {
		if len(body) < 3 {
			return nil, fmt.Errorf("kvproto: truncated subdoc mutation result")
		}
		idx := body[0]
		status := binary.BigEndian.Uint16(body[1:3])
		body = body[3:]
		var value []byte
		if status == 0 {
			if len(body) < 4 {
				return nil, fmt.Errorf("kvproto: truncated subdoc mutation value length")
			}
			vlen := binary.BigEndian.Uint32(body[0:4])
			body = body[4:]
			if uint32(len(body)) < vlen {
				return nil, fmt.Errorf("kvproto: truncated subdoc mutation value")
			}
			value = body[:vlen:vlen]
			body = body[vlen:]
		}
		out = append(out, MutationResult{Index: idx, Status: status, Value: value})
	}
	return out, nil
}

// RestoreLookupOrder reorders wire-order results back to the caller's
// original spec order using the originalIndex produced by
// ReorderLookupSpecs (§8 property 3).
func RestoreLookupOrder(wireOrder []LookupResult, originalIndex []int) []LookupResult {
	out := make([]LookupResult, len(wireOrder))
	for wirePos, origPos := range originalIndex {
		out[origPos] = wireOrder[wirePos]
	}
	return out
}

// RestoreMutationOrder remaps each result's Index (a wire-order spec
// position) back to the caller's original spec position using the
// originalIndex produced by ReorderMutationSpecs (§8 property 3). Unlike
// RestoreLookupOrder, a multi-mutation response may omit entries for
// specs that produced neither a value nor an error, so results are
// remapped in place rather than scattered into a full-length slice.
func RestoreMutationOrder(results []MutationResult, originalIndex []int) []MutationResult {
	out := make([]MutationResult, len(results))
	for i, r := range results {
		out[i] = r
		if int(r.Index) < len(originalIndex) {
			out[i].Index = uint8(originalIndex[r.Index])
		}
	}
	return out
}
