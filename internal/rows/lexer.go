// Package rows implements the streaming JSON row lexer used by the
// query, analytics, search, and views HTTP services (§4.7): rather than
// buffering an entire response body, it walks the top-level JSON object
// token by token and yields each element of the "results"/"rows" array
// as a raw json.RawMessage as soon as it closes, so a caller can start
// consuming rows before the server has finished sending the tail
// ("status", "metrics", "errors") of the response.
package rows

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/couchbaselabs/gocbcorex/kverr"
)

// rowsField is the top-level JSON key whose array elements are streamed as
// rows; it differs per service (§4.7: query/analytics use "results",
// views uses "rows").
type rowsField string

const (
	FieldResults rowsField = "results"
	FieldRows    rowsField = "rows"
)

// Lexer streams one top-level JSON object's row array element by element,
// exposing everything else in the envelope (status, errors, metrics, ...)
// as raw JSON once the stream is exhausted.
type Lexer struct {
	dec       *json.Decoder
	rowsKey   rowsField
	gz        io.Closer
	inRows    bool
	rowsDone  bool
	tail      map[string]json.RawMessage
}

// NewLexer wraps r, transparently gunzipping when gzipped is set (HTTP
// services compress response bodies; decompression is re-homed here from
// the teacher's record-batch gzip codec to response-body decompression,
// per DESIGN.md).
func NewLexer(r io.Reader, rowsKey rowsField, gzipped bool) (*Lexer, error) {
	var closer io.Closer
	if gzipped {
		gz, err := gzip.NewReader(bufio.NewReader(r))
		if err != nil {
			return nil, fmt.Errorf("rows: opening gzip reader: %w", err)
		}
		r = gz
		closer = gz
	}
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, kverr.ErrParsingFailure
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		if closer != nil {
			closer.Close()
		}
		return nil, kverr.ErrRootIsNotAnObject
	}

	return &Lexer{dec: dec, rowsKey: rowsKey, gz: closer}, nil
}

// Next returns the next row as raw JSON, io.EOF once the row array and the
// rest of the envelope have both been fully consumed, or a
// streaming-JSON-domain error if the body is malformed (§4.8).
func (l *Lexer) Next() (json.RawMessage, error) {
	for {
		if l.inRows {
			if l.dec.More() {
				var raw json.RawMessage
				if err := l.dec.Decode(&raw); err != nil {
					return nil, kverr.ErrParsingFailure
				}
				return raw, nil
			}
			// consume the closing ']'
			if _, err := l.dec.Token(); err != nil {
				return nil, kverr.ErrBracketMismatch
			}
			l.inRows = false
			l.rowsDone = true
			continue
		}

		if l.rowsDone {
			if err := l.drainTail(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		if !l.dec.More() {
			// reached the closing '}' without ever seeing the rows key
			if _, err := l.dec.Token(); err != nil {
				return nil, kverr.ErrBracketMismatch
			}
			if l.gz != nil {
				l.gz.Close()
			}
			return nil, kverr.ErrKeyNotFoundInRow
		}

		keyTok, err := l.dec.Token()
		if err != nil {
			return nil, kverr.ErrParsingFailure
		}
		key, _ := keyTok.(string)

		if key == string(l.rowsKey) {
			tok, err := l.dec.Token()
			if err != nil {
				return nil, kverr.ErrParsingFailure
			}
			d, ok := tok.(json.Delim)
			if !ok || d != '[' {
				return nil, kverr.ErrBracketMismatch
			}
			l.inRows = true
			continue
		}

		var raw json.RawMessage
		if err := l.dec.Decode(&raw); err != nil {
			return nil, kverr.ErrParsingFailure
		}
		if l.tail == nil {
			l.tail = make(map[string]json.RawMessage)
		}
		l.tail[key] = raw
	}
}

// drainTail consumes whatever envelope fields follow the row array (e.g.
// "status", "errors", "metrics") and the closing '}', detecting trailing
// garbage after it (§4.8 "garbage_trailing").
func (l *Lexer) drainTail() error {
	for l.dec.More() {
		keyTok, err := l.dec.Token()
		if err != nil {
			return kverr.ErrParsingFailure
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := l.dec.Decode(&raw); err != nil {
			return kverr.ErrParsingFailure
		}
		if l.tail == nil {
			l.tail = make(map[string]json.RawMessage)
		}
		l.tail[key] = raw
	}
	if _, err := l.dec.Token(); err != nil {
		return kverr.ErrBracketMismatch
	}
	if l.dec.More() {
		return kverr.ErrGarbageTrailing
	}
	if l.gz != nil {
		return l.gz.Close()
	}
	return nil
}

// Tail returns the envelope fields seen outside the row array. Only valid
// after Next has returned io.EOF.
func (l *Lexer) Tail() map[string]json.RawMessage { return l.tail }

// Field looks up a named tail field, decoding it into v.
func (l *Lexer) Field(name string, v interface{}) (bool, error) {
	raw, ok := l.tail[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, kverr.ErrParsingFailure
	}
	return true, nil
}
