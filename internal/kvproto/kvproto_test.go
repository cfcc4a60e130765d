package kvproto

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

// TestHeaderRoundTrip covers §8 property 6: encoding then decoding a
// request frame header yields the original logical fields (excluding
// opaque/cas which are assigned by the session -- here we just check the
// codec is faithful to whatever the caller supplied).
func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		Magic:           MagicReq,
		Opcode:          OpSet,
		KeyLength:       3,
		ExtrasLength:    8,
		DataType:        DataTypeJSON,
		StatusOrVBucket: 42,
		TotalBodyLength: 100,
		Opaque:          7,
		CAS:             0xdeadbeef,
	}
	buf := make([]byte, HeaderSize)
	in.Encode(buf)
	out, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s\nraw: %s", diff, spew.Sdump(buf))
	}
}

func TestHeaderRoundTrip_AltMagic(t *testing.T) {
	in := Header{
		Magic:               MagicAltReq,
		Opcode:              OpGet,
		FramingExtrasLength: 4,
		KeyLength:           3,
		ExtrasLength:        0,
		DataType:            DataTypeRaw,
		StatusOrVBucket:     9,
		TotalBodyLength:     7,
		Opaque:              99,
		CAS:                 1,
	}
	buf := make([]byte, HeaderSize)
	in.Encode(buf)
	out, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("alt-magic round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestUnknownFramingInfoSkipped covers §8 property 9: a received alt-magic
// frame whose framing-extras contains an unknown frame-id is parsed
// without error, the unknown extras are skipped, and the payload (here,
// server duration) is delivered intact.
func TestUnknownFramingInfoSkipped(t *testing.T) {
	var buf []byte
	// Unknown frame id 9, length 3: id/len byte = (9<<4)|3.
	buf = append(buf, byte(9<<4|3), 0xaa, 0xbb, 0xcc)
	// Known server-duration frame, id 0, length 2.
	buf = append(buf, byte(0<<4|2), 0x01, 0x02)

	resp, skipped, err := DecodeRespFramingExtras(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(skipped) != 1 || skipped[0].ID != 9 || skipped[0].Size != 3 {
		t.Fatalf("expected exactly one skipped frame id=9 size=3, got %+v", skipped)
	}
	if !resp.HasServerDuration {
		t.Fatal("expected server duration to be parsed despite the preceding unknown frame")
	}
	wantDuration := DecodeServerDuration(0x0102)
	if resp.ServerDuration != wantDuration {
		t.Errorf("server duration = %d, want %d", resp.ServerDuration, wantDuration)
	}
}

func TestServerDurationDecode(t *testing.T) {
	// pow(v,1.74)/2 with v=0 must be 0.
	if got := DecodeServerDuration(0); got != 0 {
		t.Errorf("DecodeServerDuration(0) = %d, want 0", got)
	}
}

func TestCollectionKeyRoundTrip(t *testing.T) {
	key := []byte("my-document-id")
	wire := AppendCollectionKey(nil, 0x1234, key)
	uid, logical, ok := DecodeCollectionKey(wire)
	if !ok {
		t.Fatal("decode failed")
	}
	if uid != 0x1234 {
		t.Errorf("uid = %#x, want 0x1234", uid)
	}
	if string(logical) != string(key) {
		t.Errorf("logical key = %q, want %q", logical, key)
	}
}

func TestCollectionKeyRoundTrip_DefaultCollection(t *testing.T) {
	wire := AppendCollectionKey(nil, 0, []byte("k"))
	uid, logical, ok := DecodeCollectionKey(wire)
	if !ok || uid != 0 || string(logical) != "k" {
		t.Fatalf("unexpected decode: uid=%d logical=%q ok=%v", uid, logical, ok)
	}
}

func TestShouldCompress(t *testing.T) {
	tests := []struct {
		op       Opcode
		valueLen int
		support  bool
		want     bool
	}{
		{OpSet, 31, true, false},  // below threshold
		{OpSet, 32, true, true},   // at threshold
		{OpSet, 100, false, false}, // peer doesn't support snappy
		{OpGet, 100, true, false}, // not a mutating opcode
		{OpAdd, 100, true, true},
		{OpReplace, 100, true, true},
	}
	for _, tt := range tests {
		got := ShouldCompress(tt.op, tt.valueLen, tt.support)
		if got != tt.want {
			t.Errorf("ShouldCompress(%v, %d, %v) = %v, want %v", tt.op, tt.valueLen, tt.support, got, tt.want)
		}
	}
}

func TestCompressRoundTrip(t *testing.T) {
	value := []byte(`{"hello":"world, this is a long enough value to compress"}`)
	compressed := Compress(value)
	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(decompressed) != string(value) {
		t.Errorf("decompressed = %q, want %q", decompressed, value)
	}
}

func TestReorderLookupSpecs_XattrFirst(t *testing.T) {
	specs := []LookupSpec{
		{Op: SubdocGet, Path: "body.path"},
		{Op: SubdocGet, Path: "$document.exptime", Flags: SubdocPathFlagXattr},
		{Op: SubdocGet, Path: "another.body.path"},
		{Op: SubdocGet, Path: "$document.CAS", Flags: SubdocPathFlagXattr},
	}
	ordered, origIdx := ReorderLookupSpecs(specs)

	for i, s := range ordered {
		isXattr := isXattrFlag(s.Flags)
		if i < 2 && !isXattr {
			t.Fatalf("expected XATTR specs first, got %+v at position %d", s, i)
		}
		if i >= 2 && isXattr {
			t.Fatalf("expected body specs last, got %+v at position %d", s, i)
		}
	}

	// §8 property 3: result vector, once restored via origIdx, must match
	// the caller's original order regardless of internal reordering.
	results := make([]LookupResult, len(ordered))
	for i, s := range ordered {
		results[i] = LookupResult{Value: []byte(s.Path)}
	}
	restored := RestoreLookupOrder(results, origIdx)
	for i, s := range specs {
		if string(restored[i].Value) != s.Path {
			t.Errorf("restored[%d] = %q, want %q", i, restored[i].Value, s.Path)
		}
	}
}

func TestEncodeDecodeLookupSpecsAndResults(t *testing.T) {
	specs := []LookupSpec{
		{Op: SubdocGet, Path: "a.b"},
		{Op: SubdocExists, Path: "c.d"},
	}
	wire := EncodeLookupSpecs(nil, specs)
	if len(wire) == 0 {
		t.Fatal("expected non-empty encoding")
	}

	var body []byte
	body = append(body, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 'x')
	body = append(body, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00)
	results, err := DecodeLookupResults(body, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 2 || string(results[0].Value) != "x" || results[1].Status != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestDecodeMutationResults(t *testing.T) {
	var body []byte
	body = append(body, 2, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, '4', '2')
	results, err := DecodeMutationResults(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 1 || results[0].Index != 2 || string(results[0].Value) != "42" {
		t.Fatalf("unexpected results: %+v", results)
	}
}
