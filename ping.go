package gocbcorex

import (
	"context"
	"time"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/session"
)

// PingResult is one node's outcome from a Ping sweep.
type PingResult struct {
	NodeIndex int32
	Address   string
	Latency   time.Duration
	Error     error
}

// Ping issues a no-op NOOP-equivalent request (HELLO, which every
// connected session has already completed, so this simply round-trips a
// GET against a key known not to exist) against every currently known
// node and reports each one's latency or error, without going through
// partition routing or retry (§4.9 "ping": a liveness probe, not an
// operation).
func (a *Agent) Ping(ctx context.Context) []PingResult {
	nodes := a.manager.Nodes()
	results := make([]PingResult, len(nodes))

	for i, node := range nodes {
		start := time.Now()
		sess, err := a.sessions.SessionForNode(int32(i))
		if err != nil {
			results[i] = PingResult{NodeIndex: int32(i), Address: node.Hostname, Error: err}
			continue
		}

		_, err = sess.Do(ctx, session.Frame{
			Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpGet},
			Key:    []byte("\x00gocbcorex-ping-probe"),
		})
		// A key-not-found response still proves the round trip succeeded;
		// sess.Do only returns an error for a transport-level failure.
		if err != nil {
			results[i] = PingResult{NodeIndex: int32(i), Address: node.Hostname, Error: err}
			continue
		}
		results[i] = PingResult{
			NodeIndex: int32(i),
			Address:   node.Hostname,
			Latency:   time.Since(start),
		}
	}
	return results
}
