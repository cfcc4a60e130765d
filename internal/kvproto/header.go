// Package kvproto implements the binary key-value wire protocol: the
// 24-byte frame header, framing-extras, Snappy value compression, the
// collection-UID key prefix, and subdocument multi-spec encoding. It has
// no knowledge of sessions, retries, or topology; it only turns logical
// requests into bytes and bytes back into logical responses.
//
// Grounded on the memcached binary protocol (the family Couchbase's KV
// wire protocol extends): see
// other_examples/fee811bc_aliexpressru-gomemcached for the header/opaque/
// CAS layout this mirrors, and on the teacher's (twmb/kafka-go) own
// size-prefixed framing discipline in broker.go's writeRequest/readResponse.
package kvproto

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies whether a frame is a request or response, and whether
// it uses the "alt" (flexible framing-extras) layout.
type Magic uint8

const (
	MagicReq    Magic = 0x80
	MagicRes    Magic = 0x81
	MagicAltReq Magic = 0x08
	MagicAltRes Magic = 0x18
)

func (m Magic) IsAlt() bool { return m == MagicAltReq || m == MagicAltRes }
func (m Magic) IsRequest() bool { return m == MagicReq || m == MagicAltReq }

// HeaderSize is the fixed 24-byte frame header length (§4.1).
const HeaderSize = 24

// Header is the decoded fixed 24-byte frame header. All multi-byte fields
// are big-endian on the wire.
type Header struct {
	Magic Magic
	Opcode Opcode

	// KeyLength is the key length for non-alt frames. For alt frames, the
	// wire packs FramingExtrasLength(1)||KeyLength(1) into the same two
	// bytes; Decode splits them into FramingExtrasLength/KeyLength.
	KeyLength uint16
	FramingExtrasLength uint8

	ExtrasLength uint8
	DataType     DataType

	// StatusOrVBucket is the vbucket-id on a request frame, and the status
	// code on a response frame (§4.1).
	StatusOrVBucket uint16

	TotalBodyLength uint32
	Opaque          uint32
	CAS             uint64
}

// Status interprets StatusOrVBucket as a response status.
func (h Header) Status() uint16 { return h.StatusOrVBucket }

// VBucket interprets StatusOrVBucket as a request's target vbucket id.
func (h Header) VBucket() uint16 { return h.StatusOrVBucket }

// Encode writes the 24-byte header to dst, which must be at least
// HeaderSize bytes.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	dst[0] = byte(h.Magic)
	dst[1] = byte(h.Opcode)
	if h.Magic.IsAlt() {
		dst[2] = h.FramingExtrasLength
		dst[3] = byte(h.KeyLength)
	} else {
		binary.BigEndian.PutUint16(dst[2:4], h.KeyLength)
	}
	dst[4] = h.ExtrasLength
	dst[5] = byte(h.DataType)
	binary.BigEndian.PutUint16(dst[6:8], h.StatusOrVBucket)
	binary.BigEndian.PutUint32(dst[8:12], h.TotalBodyLength)
	binary.BigEndian.PutUint32(dst[12:16], h.Opaque)
	binary.BigEndian.PutUint64(dst[16:24], h.CAS)
}

// DecodeHeader parses the fixed 24-byte header from src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("kvproto: short header: %d bytes", len(src))
	}
	h := Header{
		Magic:  Magic(src[0]),
		Opcode: Opcode(src[1]),
	}
	if h.Magic.IsAlt() {
		h.FramingExtrasLength = src[2]
		h.KeyLength = uint16(src[3])
	} else {
		h.KeyLength = binary.BigEndian.Uint16(src[2:4])
	}
	h.ExtrasLength = src[4]
	h.DataType = DataType(src[5])
	h.StatusOrVBucket = binary.BigEndian.Uint16(src[6:8])
	h.TotalBodyLength = binary.BigEndian.Uint32(src[8:12])
	h.Opaque = binary.BigEndian.Uint32(src[12:16])
	h.CAS = binary.BigEndian.Uint64(src[16:24])
	return h, nil
}

// DataType is the 1-byte datatype bitfield (§4.1 "Compression").
type DataType uint8

const (
	DataTypeRaw    DataType = 0x00
	DataTypeJSON   DataType = 0x01
	DataTypeSnappy DataType = 0x02
	DataTypeXattr  DataType = 0x04
)

func (d DataType) HasSnappy() bool { return d&DataTypeSnappy != 0 }
func (d DataType) HasXattr() bool  { return d&DataTypeXattr != 0 }
func (d DataType) HasJSON() bool   { return d&DataTypeJSON != 0 }
