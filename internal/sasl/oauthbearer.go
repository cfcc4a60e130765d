package sasl

import "context"

// OAuthBearer implements the OAUTHBEARER mechanism (§4.1): a single
// client-to-server message carrying a bearer token, with no server
// challenge expected on success. Per §9's design note, the resulting
// session has no reachable Step call on the success path — the server
// either accepts the one message or fails the exchange outright, so
// oauthbearerSession.Step exists only to satisfy the Session interface
// and is never invoked in practice.
type OAuthBearer struct {
	Token string
}

func (OAuthBearer) Name() string { return "OAUTHBEARER" }

func (o OAuthBearer) Start(ctx context.Context, host string) (Session, []byte, error) {
	msg := "n,,\x01auth=Bearer " + o.Token + "\x01\x01"
	return oauthbearerSession{}, []byte(msg), nil
}

type oauthbearerSession struct{}

func (oauthbearerSession) Step(challenge []byte) ([]byte, bool, error) {
	return nil, true, nil
}
