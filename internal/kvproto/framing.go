package kvproto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// DurabilityLevel is the replication guarantee required before a mutation
// is acknowledged (§6 "Durability").
type DurabilityLevel uint8

const (
	DurabilityNone DurabilityLevel = iota
	DurabilityMajority
	DurabilityMajorityAndPersistToActive
	DurabilityPersistToMajority
)

// ReqFramingExtras are the per-request framing-extras this client sends:
// an optional durability level (with optional 16-bit timeout) and an
// optional preserve-TTL flag (§4.1 "Bodies and order").
type ReqFramingExtras struct {
	Durability        DurabilityLevel
	HasDurability     bool
	DurabilityTimeout uint16 // 0 means "use the server default"
	PreserveTTL       bool
}

// Encode appends the wire encoding of the framing-extras to dst and
// returns the result.
func (f ReqFramingExtras) Encode(dst []byte) []byte {
	if f.HasDurability {
		if f.DurabilityTimeout > 0 {
			idLen := byte(uint8(ReqFrameDurability)<<4 | 3)
			dst = append(dst, idLen, byte(f.Durability))
			var tb [2]byte
			binary.BigEndian.PutUint16(tb[:], f.DurabilityTimeout)
			dst = append(dst, tb[:]...)
		} else {
			idLen := byte(uint8(ReqFrameDurability)<<4 | 1)
			dst = append(dst, idLen, byte(f.Durability))
		}
	}
	if f.PreserveTTL {
		idLen := byte(uint8(ReqFramePreserveTTL)<<4 | 0)
		dst = append(dst, idLen)
	}
	return dst
}

// RespFramingExtras are the per-response framing-extras this client
// understands: server-side processing duration and an optional enhanced
// error context (§4.1, SPEC_FULL.md "Enhanced error info").
type RespFramingExtras struct {
	HasServerDuration bool
	ServerDuration    uint32 // microseconds

	HasErrorContext bool
	ErrorContext    EnhancedErrorInfo
}

// EnhancedErrorInfo is the {context, reference} pair servers attach to
// some error responses (SPEC_FULL.md "SUPPLEMENTED FEATURES").
type EnhancedErrorInfo struct {
	Context   string `json:"context,omitempty"`
	Reference string `json:"ref,omitempty"`
}

// SkippedFrame records an unknown frame-info id that was skipped by size,
// so callers can log it at their preferred level (spec.md §9 open question
// (c); DESIGN.md decided to log these at debug level).
type SkippedFrame struct {
	ID   uint8
	Size int
}

// DecodeRespFramingExtras parses src (exactly FramingExtrasLength bytes)
// and returns the recognized fields plus any unknown frames that were
// skipped. Unknown ids are skipped by advancing frame_size bytes, per the
// compatibility rule in §4.1 and the boundary test in §8 property 9.
func DecodeRespFramingExtras(src []byte) (RespFramingExtras, []SkippedFrame, error) {
	var out RespFramingExtras
	var skipped []SkippedFrame

	for len(src) > 0 {
		idLen := src[0]
		id := idLen >> 4
		size := int(idLen & 0x0f)
		src = src[1:]

		// A size nibble of 15 means the real size follows as one extra
		// byte, added to 15 (standard framing-extras escape, mirrored
		// from the request-side encoding rule used elsewhere in the
		// protocol family).
		if size == 0x0f {
			if len(src) < 1 {
				return out, skipped, fmt.Errorf("kvproto: truncated framing-extras escape")
			}
			size = 0x0f + int(src[0])
			src = src[1:]
		}
		if len(src) < size {
			return out, skipped, fmt.Errorf("kvproto: truncated framing-extras frame id=%d size=%d", id, size)
		}
		body := src[:size]
		src = src[size:]

		switch FrameInfoID(id) {
		case RespFrameServerDuration:
			if size == 2 {
				raw := binary.BigEndian.Uint16(body)
				out.HasServerDuration = true
				out.ServerDuration = DecodeServerDuration(raw)
			}
		case RespFrameErrorContext:
			var info EnhancedErrorInfo
			if err := json.Unmarshal(body, &info); err == nil {
				out.HasErrorContext = true
				out.ErrorContext = info
			}
		default:
			skipped = append(skipped, SkippedFrame{ID: id, Size: size})
		}
	}
	return out, skipped, nil
}

// DecodeServerDuration converts the 16-bit encoded server duration to
// microseconds, per §4.1: pow(v, 1.74)/2.
func DecodeServerDuration(v uint16) uint32 {
	return uint32(math.Pow(float64(v), 1.74) / 2)
}
