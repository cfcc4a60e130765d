package kverr

import "encoding/json"

// EnhancedErrorInfo is the server-returned {context, reference} pair the
// data service attaches to some responses via a framing-extras "error
// context" id (SPEC_FULL.md "SUPPLEMENTED FEATURES", grounded on
// core/impl/key_value_error_context.cxx).
type EnhancedErrorInfo struct {
	Context   string `json:"context,omitempty"`
	Reference string `json:"ref,omitempty"`
}

// ErrorMapInfo is the server error-map entry for a status the client does
// not hardcode (§3 "Session", §4.2 "Server-driven retry").
type ErrorMapInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Attributes  []string `json:"attrs"`
}

func (m ErrorMapInfo) hasAttribute(attr string) bool {
	for _, a := range m.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// RetryNow/RetryLater/Internal report the three error-map attributes the
// session's server-driven retry logic and the internal/retry package care
// about (§4.2, §4.8 "Unknown statuses").
func (m ErrorMapInfo) RetryNow() bool  { return m.hasAttribute("retry-now") }
func (m ErrorMapInfo) RetryLater() bool { return m.hasAttribute("retry-later") }
func (m ErrorMapInfo) Internal() bool  { return m.hasAttribute("internal") }

// ec is the canonical {value,message} pair an ErrorContext serializes its
// root cause as.
type ec struct {
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ErrorContext is the structured context that accompanies every surfaced
// result (§3 "Error context", §7 "canonical JSON for logging").
type ErrorContext struct {
	Err              error
	OperationID      string
	RetryAttempts    int
	RetryReasons     []string
	LastDispatchedTo string
	LastDispatchedFrom string
	StatusCode       *uint16
	EnhancedInfo     *EnhancedErrorInfo
	ErrorMapInfo     *ErrorMapInfo
}

func (c *ErrorContext) Error() string {
	if c.Err == nil {
		return "unknown error"
	}
	return c.Err.Error()
}

func (c *ErrorContext) Unwrap() error { return c.Err }

// canonicalJSON is the on-the-wire shape for logging (§7): {ec:{value,
// message}, operation_id, retry_attempts, retry_reasons, last_dispatched_to,
// last_dispatched_from, status_code?, extended_error_info?, error_map_info?}.
type canonicalJSON struct {
	EC                 ec                 `json:"ec"`
	OperationID        string             `json:"operation_id,omitempty"`
	RetryAttempts      int                `json:"retry_attempts"`
	RetryReasons       []string           `json:"retry_reasons"`
	LastDispatchedTo   string             `json:"last_dispatched_to,omitempty"`
	LastDispatchedFrom string             `json:"last_dispatched_from,omitempty"`
	StatusCode         *uint16            `json:"status_code,omitempty"`
	ExtendedErrorInfo  *EnhancedErrorInfo `json:"extended_error_info,omitempty"`
	ErrorMapInfo       *ErrorMapInfo      `json:"error_map_info,omitempty"`
}

// MarshalJSON renders the canonical logging shape described in §7.
func (c *ErrorContext) MarshalJSON() ([]byte, error) {
	msg := ""
	if c.Err != nil {
		msg = c.Err.Error()
	}
	out := canonicalJSON{
		EC:                 ec{Value: msg, Message: msg},
		OperationID:        c.OperationID,
		RetryAttempts:      c.RetryAttempts,
		RetryReasons:       c.RetryReasons,
		LastDispatchedTo:   c.LastDispatchedTo,
		LastDispatchedFrom: c.LastDispatchedFrom,
		StatusCode:         c.StatusCode,
		ExtendedErrorInfo:  c.EnhancedInfo,
		ErrorMapInfo:       c.ErrorMapInfo,
	}
	if out.RetryReasons == nil {
		out.RetryReasons = []string{}
	}
	return json.Marshal(out)
}
