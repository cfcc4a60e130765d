// Package sasl implements the client side of the authentication
// mechanisms this client supports against the KV service: PLAIN,
// SCRAM-SHA-512/256/1, and OAUTHBEARER (§4.1 "Handshake").
//
// Grounded on the teacher's (twmb/kafka-go) use of
// github.com/twmb/franz-go/pkg/sasl, in particular brokerCxn.sasl/doSasl
// in broker.go: a Mechanism is asked for its Name and, on demand, begins
// a Session that is stepped with server challenges until it reports
// done. That shape is reproduced here in-module rather than imported,
// since franz-go's sasl package is Kafka-specific (its Authenticate
// takes a Kafka broker address and its wire framing assumes
// SASLAuthenticate request/response envelopes the KV protocol does not
// have).
package sasl

import "context"

// Mechanism is one client-side SASL mechanism. Name is sent in the KV
// HELLO/SASL negotiation; Start begins a session for a given target host,
// returning the session and the first client-to-server message to send.
type Mechanism interface {
	Name() string
	Start(ctx context.Context, host string) (Session, []byte, error)
}

// Session steps a single SASL exchange forward one server challenge at a
// time. Done reports whether the exchange completed after the last Step
// call (or immediately after Start for one-shot mechanisms).
type Session interface {
	Step(challenge []byte) (response []byte, done bool, err error)
}
