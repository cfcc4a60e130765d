package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/couchbaselabs/gocbcorex/internal/logging"
)

// Service names the HTTP-based Couchbase service an endpoint belongs to
// (§4.7 "query, analytics, search, views, management").
type Service string

const (
	ServiceQuery      Service = "query"
	ServiceAnalytics  Service = "analytics"
	ServiceSearch     Service = "search"
	ServiceViews      Service = "views"
	ServiceManagement Service = "mgmt"
)

// Request is a single HTTP-service call, resolved against whichever
// endpoint the caller has already picked for Service (load-balancing and
// endpoint selection live one layer up, in the façade).
type Request struct {
	Service  Service
	Method   string
	Endpoint string
	Path     string
	Body     []byte
	Headers  map[string]string
	Username string
	Password string
}

// Dispatcher issues Requests against a Pool of per-endpoint *http.Clients,
// generalizing the teacher's single dial-once-reuse broker connection
// (broker.go's cxn field) to one *http.Client per HTTP service endpoint.
type Dispatcher struct {
	Pool *Pool
	Log  logging.Logger
}

// NewDispatcher returns a Dispatcher backed by a fresh Pool.
func NewDispatcher(log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Nop
	}
	return &Dispatcher{Pool: NewPool(), Log: log}
}

// Do issues req and returns the raw response body reader; the caller is
// responsible for closing it. Non-2xx statuses are not treated as errors
// here — the JSON row lexer (internal/rows) classifies failure payloads,
// since HTTP services report errors in the body, not just the status line
// (§4.7).
func (d *Dispatcher) Do(ctx context.Context, req Request) (*http.Response, error) {
	client := d.Pool.Client(string(req.Service) + "@" + req.Endpoint)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Endpoint+req.Path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}

	d.Log.Log(logging.LogLevelDebug, "http request", "service", string(req.Service), "method", req.Method, "path", req.Path)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
