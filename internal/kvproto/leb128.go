package kvproto

// AppendCollectionKey appends the on-wire key for a collection-aware peer:
// leb128(collectionUID) ‖ logicalKey (§3 "Document identity").
func AppendCollectionKey(dst []byte, collectionUID uint32, logicalKey []byte) []byte {
	dst = appendUvarint(dst, collectionUID)
	return append(dst, logicalKey...)
}

// DecodeCollectionKey splits a collection-prefixed wire key back into the
// collection UID and the logical key.
func DecodeCollectionKey(wireKey []byte) (collectionUID uint32, logicalKey []byte, ok bool) {
	v, n := uvarint(wireKey)
	if n <= 0 {
		return 0, nil, false
	}
	return uint32(v), wireKey[n:], true
}

// appendUvarint appends the unsigned LEB128 encoding of v to dst. Unlike
// encoding/binary's Uvarint (which is 7-bits-per-byte little-endian, same
// scheme, different name), this is written out explicitly since LEB128 is
// the term the wire protocol and spec.md use.
func appendUvarint(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// uvarint decodes an unsigned LEB128 value from the front of buf, mirroring
// encoding/binary.Uvarint's (value, bytesRead) contract: bytesRead <= 0
// means "not enough data" / "overflow".
func uvarint(buf []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, b := range buf {
		if i == 4 && b >= 0x10 {
			return 0, -(i + 1) // overflow for a 32-bit collection UID
		}
		if b < 0x80 {
			return x | uint64(b)<<s, i + 1
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, 0
}
