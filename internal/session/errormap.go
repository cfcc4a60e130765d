package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/retry"
)

// ErrorMapAttribute is one of the server-advertised error-map attributes
// (§4.2 "Server-driven retry"), grounded on
// original_source/couchbase/key_value_error_map_attribute.hxx.
type ErrorMapAttribute string

const (
	AttrSuccess              ErrorMapAttribute = "success"
	AttrItemOnly             ErrorMapAttribute = "item-only"
	AttrInvalidInput         ErrorMapAttribute = "invalid-input"
	AttrFetchConfig          ErrorMapAttribute = "fetch-config"
	AttrConnStateInvalidated ErrorMapAttribute = "conn-state-invalidated"
	AttrAuth                 ErrorMapAttribute = "auth"
	AttrSpecialHandling      ErrorMapAttribute = "special-handling"
	AttrSupport              ErrorMapAttribute = "support"
	AttrTemp                 ErrorMapAttribute = "temp"
	AttrInternal             ErrorMapAttribute = "internal"
	AttrRetryNow             ErrorMapAttribute = "retry-now"
	AttrRetryLater           ErrorMapAttribute = "retry-later"
	AttrSubdoc               ErrorMapAttribute = "subdoc"
	AttrDCP                  ErrorMapAttribute = "dcp"
	AttrAutoRetry            ErrorMapAttribute = "auto-retry"
	AttrItemLocked           ErrorMapAttribute = "item-locked"
	AttrItemDeleted          ErrorMapAttribute = "item-deleted"
	AttrRateLimit            ErrorMapAttribute = "rate-limit"
	AttrSystemConstraint     ErrorMapAttribute = "system-constraint"
	AttrNoRetry              ErrorMapAttribute = "no-retry"
)

// ErrorMapEntry is one status code's server-advertised metadata.
type ErrorMapEntry struct {
	Name       string              `json:"name"`
	Desc       string              `json:"desc"`
	Attributes []ErrorMapAttribute `json:"attrs"`
}

func (e ErrorMapEntry) hasAttr(a ErrorMapAttribute) bool {
	for _, x := range e.Attributes {
		if x == a {
			return true
		}
	}
	return false
}

// ErrorMap is the server's advertised status-code error map, fetched
// once per connection via GET_ERROR_MAP (§4.2).
type ErrorMap struct {
	Version  int                      `json:"version"`
	Revision int                      `json:"revision"`
	Errors   map[string]ErrorMapEntry `json:"errors"`
}

// FetchErrorMap requests the server's error map at the highest version
// this client understands (version 2, per
// key_value_error_map_attribute.hxx's rate_limit/system_constraint
// additions).
func FetchErrorMap(ctx context.Context, s *Session) (*ErrorMap, error) {
	extras := []byte{0x00, 0x02}
	req := Frame{
		Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpGetErrorMap},
		Value:  extras,
	}
	resp, err := s.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("session: get_error_map: %w", err)
	}
	if resp.Header.Status() != 0 {
		return nil, fmt.Errorf("session: get_error_map rejected with status 0x%02x", resp.Header.Status())
	}
	var em ErrorMap
	if err := json.Unmarshal(resp.Value, &em); err != nil {
		return nil, fmt.Errorf("session: decoding error map: %w", err)
	}
	return &em, nil
}

// ClassifyUnknownStatus turns a status code this client has no named
// kverr.Status mapping for into a retry.Reason, using the server's
// error-map attributes as a fallback (§4.2 "error-map attribute
// fallback"). retry-now/auto-retry/retry-later all map to the generic
// kv_error_map_retry_indicated reason; conn-state-invalidated and auth
// never retry regardless of other attributes present.
func (m *ErrorMap) ClassifyUnknownStatus(status uint16) (retry.Reason, bool) {
	entry, ok := m.Errors[fmt.Sprintf("%x", status)]
	if !ok {
		return retry.ReasonUnknown, false
	}
	if entry.hasAttr(AttrConnStateInvalidated) || entry.hasAttr(AttrAuth) || entry.hasAttr(AttrNoRetry) {
		return retry.ReasonUnknown, false
	}
	if entry.hasAttr(AttrRetryNow) || entry.hasAttr(AttrRetryLater) || entry.hasAttr(AttrAutoRetry) {
		return retry.ReasonKVErrorMapRetryIndicated, true
	}
	return retry.ReasonUnknown, false
}
