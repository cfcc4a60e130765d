package kvproto

import "github.com/golang/snappy"

// CompressionThreshold is the minimum value size, in bytes, at which
// mutating opcodes compress the value when the peer supports Snappy
// (§4.1 "Compression").
const CompressionThreshold = 32

// ShouldCompress reports whether a value of the given size on the given
// opcode should be Snappy-compressed, assuming the peer advertised the
// capability. The mutating opcodes named in §4.1 are insert (add),
// upsert (set), and replace.
func ShouldCompress(op Opcode, valueLen int, peerSupportsSnappy bool) bool {
	if !peerSupportsSnappy || valueLen < CompressionThreshold {
		return false
	}
	switch op {
	case OpAdd, OpSet, OpReplace:
		return true
	}
	return false
}

// Compress Snappy-compresses value, reusing the teacher's own compression
// dependency (github.com/golang/snappy), retargeted from Kafka
// record-batch bodies to individual KV values.
func Compress(value []byte) []byte {
	return snappy.Encode(nil, value)
}

// Decompress reverses Compress. Per §4.1, decompression is mandatory
// whenever the snappy datatype bit is present on a response, regardless of
// what this client negotiated.
func Decompress(compressed []byte) ([]byte, error) {
	return snappy.Decode(nil, compressed)
}
