package gocbcorex

import "github.com/couchbaselabs/gocbcorex/internal/session"

// EndpointState names the lifecycle state of one node's session, as
// surfaced to a diagnostics caller (§4.9 "diagnostics": a point-in-time
// report, unlike Ping which actively probes).
type EndpointState string

const (
	EndpointResolving     EndpointState = "resolving"
	EndpointConnecting    EndpointState = "connecting"
	EndpointAuthenticating EndpointState = "authenticating"
	EndpointConnected     EndpointState = "connected"
	EndpointDisconnected  EndpointState = "disconnected"
)

// EndpointDiagnostics is one node's current connection state.
type EndpointDiagnostics struct {
	NodeIndex int32
	Address   string
	State     EndpointState
}

// DiagnosticsReport is a point-in-time snapshot of every session this
// Agent currently holds open, without issuing any network traffic (§4.9
// "diagnostics").
type DiagnosticsReport struct {
	Bucket    string
	Endpoints []EndpointDiagnostics
}

// Diagnostics returns the current state of every session this Agent has
// dialed so far. Unlike Ping, it never blocks on the network: a node this
// Agent has not yet needed to talk to simply does not appear.
func (a *Agent) Diagnostics() DiagnosticsReport {
	a.sessions.mu.Lock()
	defer a.sessions.mu.Unlock()

	report := DiagnosticsReport{Bucket: a.cfg.bucket}
	for nodeIndex, sess := range a.sessions.conns {
		report.Endpoints = append(report.Endpoints, EndpointDiagnostics{
			NodeIndex: nodeIndex,
			Address:   a.sessions.addrs[nodeIndex],
			State:     endpointStateFor(sess.State()),
		})
	}
	return report
}

func endpointStateFor(s session.State) EndpointState {
	switch s {
	case session.StateResolving:
		return EndpointResolving
	case session.StateConnecting:
		return EndpointConnecting
	case session.StateAuthenticating, session.StateSelectingBucket:
		return EndpointAuthenticating
	case session.StateReady:
		return EndpointConnected
	default:
		return EndpointDisconnected
	}
}
