package session

import (
	"fmt"
	"io"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
)

// Frame is one fully decoded wire frame: the fixed header plus its
// variable-length sections, still in wire-encoded form (extras/key/value
// are opcode-specific and decoded by the dispatch layer that knows what
// opcode it sent). Grounded on the teacher's readResponse, which reads a
// length-prefixed buffer and hands back raw bytes for the caller's
// ReadFrom to interpret (broker.go:799).
type Frame struct {
	Header        kvproto.Header
	FramingExtras []byte
	Extras        []byte
	Key           []byte
	Value         []byte
}

// writeFrame serializes header+sections and writes them as one frame to
// w (§4.1 "Frame").
func writeFrame(w io.Writer, f Frame) error {
	body := len(f.FramingExtras) + len(f.Extras) + len(f.Key) + len(f.Value)
	buf := make([]byte, kvproto.HeaderSize+body)

	f.Header.TotalBodyLength = uint32(body)
	if f.Header.Magic.IsAlt() {
		f.Header.FramingExtrasLength = uint8(len(f.FramingExtras))
	}
	f.Header.ExtrasLength = uint8(len(f.Extras))
	f.Header.KeyLength = uint16(len(f.Key))
	f.Header.Encode(buf[:kvproto.HeaderSize])

	off := kvproto.HeaderSize
	off += copy(buf[off:], f.FramingExtras)
	off += copy(buf[off:], f.Extras)
	off += copy(buf[off:], f.Key)
	copy(buf[off:], f.Value)

	_, err := w.Write(buf)
	return err
}

// readFrame reads one complete frame from r, blocking until the header
// and full body have arrived (§4.1). Grounded on the teacher's readConn,
// which always reads a 4-byte size prefix followed by that many bytes;
// here the size is implicit in the 24-byte header's TotalBodyLength.
func readFrame(r io.Reader) (Frame, error) {
	hdrBuf := make([]byte, kvproto.HeaderSize)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return Frame{}, err
	}
	hdr, err := kvproto.DecodeHeader(hdrBuf)
	if err != nil {
		return Frame{}, err
	}

	body := make([]byte, hdr.TotalBodyLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}

	f := Frame{Header: hdr}
	off := 0
	if hdr.Magic.IsAlt() {
		if int(hdr.FramingExtrasLength) > len(body)-off {
			return Frame{}, fmt.Errorf("session: truncated framing extras")
		}
		f.FramingExtras = body[off : off+int(hdr.FramingExtrasLength)]
		off += int(hdr.FramingExtrasLength)
	}
	if int(hdr.ExtrasLength) > len(body)-off {
		return Frame{}, fmt.Errorf("session: truncated extras")
	}
	f.Extras = body[off : off+int(hdr.ExtrasLength)]
	off += int(hdr.ExtrasLength)

	if int(hdr.KeyLength) > len(body)-off {
		return Frame{}, fmt.Errorf("session: truncated key")
	}
	f.Key = body[off : off+int(hdr.KeyLength)]
	off += int(hdr.KeyLength)

	f.Value = body[off:]
	return f, nil
}
