package sasl

import "context"

// Plain implements the PLAIN mechanism (§4.1): a single client-to-server
// message of the form "\x00username\x00password", no server challenge.
type Plain struct {
	Username string
	Password string
}

func (Plain) Name() string { return "PLAIN" }

func (p Plain) Start(ctx context.Context, host string) (Session, []byte, error) {
	msg := make([]byte, 0, len(p.Username)+len(p.Password)+2)
	msg = append(msg, 0)
	msg = append(msg, p.Username...)
	msg = append(msg, 0)
	msg = append(msg, p.Password...)
	return plainSession{}, msg, nil
}

// plainSession is never stepped: the server either accepts or rejects
// the single message sent at Start (§4.1, "OAUTHBEARER step is
// unreachable" applies equally here — PLAIN has no continuation).
type plainSession struct{}

func (plainSession) Step(challenge []byte) ([]byte, bool, error) {
	return nil, true, nil
}
