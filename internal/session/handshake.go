package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/logging"
	"github.com/couchbaselabs/gocbcorex/internal/sasl"
)

// defaultFeatures is requested on every HELLO unless the caller overrides
// RequestedFeatures (§4.1 "Handshake").
var defaultFeatures = []kvproto.HelloFeature{
	kvproto.FeatureXattr,
	kvproto.FeatureXerror,
	kvproto.FeatureSelectBucket,
	kvproto.FeatureSnappy,
	kvproto.FeatureJSON,
	kvproto.FeatureAltRequests,
	kvproto.FeatureSyncReplication,
	kvproto.FeatureCollections,
	kvproto.FeaturePreserveTTL,
	kvproto.FeatureErrorMap,
}

// hello performs the HELLO negotiation: send our client id and requested
// feature list, read back the subset of features the server accepted
// (§4.1). Grounded on the teacher's requestAPIVersions (broker.go:446),
// which performs the analogous "ask what the peer supports" step before
// any other traffic flows.
func (s *Session) hello(ctx context.Context) error {
	features := s.opts.RequestedFeatures
	if features == nil {
		features = defaultFeatures
	}

	extras := make([]byte, 2*len(features))
	for i, f := range features {
		binary.BigEndian.PutUint16(extras[i*2:], uint16(f))
	}

	req := Frame{
		Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpHello},
		Key:    []byte(s.opts.ClientID),
		Value:  extras,
	}

	resp, err := s.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("session: hello: %w", err)
	}
	if resp.Header.Status() != 0 {
		return fmt.Errorf("session: hello rejected with status 0x%02x", resp.Header.Status())
	}

	for i := 0; i+1 < len(resp.Value); i += 2 {
		f := kvproto.HelloFeature(binary.BigEndian.Uint16(resp.Value[i:]))
		s.enabledFeatures[f] = true
	}
	s.log.Log(logging.LogLevelDebug, "hello negotiated", "features", s.enabledFeatures)
	return nil
}

// authenticate picks the strongest of the configured SASL mechanisms that
// the server actually advertises via SASL_LIST_MECHS, then authenticates
// with that one mechanism alone (§4.2(b): "lists the mechanisms the
// server supports, then picks the strongest the server supports"). If
// SASL_LIST_MECHS itself fails (some deployments gate it behind a
// feature), this falls back to the teacher's sasl/doSasl
// retry-on-unsupported-mechanism loop (broker.go:509-560), trying each
// configured mechanism in preference order until one is accepted.
func (s *Session) authenticate(ctx context.Context) error {
	if len(s.opts.Mechanisms) == 0 {
		return nil
	}

	if supported, err := s.listMechs(ctx); err == nil {
		for _, mech := range s.opts.Mechanisms {
			if !supported[mech.Name()] {
				continue
			}
			if err := s.authenticateWith(ctx, mech); err != nil {
				return fmt.Errorf("session: sasl mechanism %s rejected: %w", mech.Name(), err)
			}
			s.log.Log(logging.LogLevelDebug, "sasl authentication succeeded", "mechanism", mech.Name())
			return nil
		}
		return fmt.Errorf("session: server supports none of the configured sasl mechanisms")
	}

	var lastErr error
	for _, mech := range s.opts.Mechanisms {
		err := s.authenticateWith(ctx, mech)
		if err == nil {
			s.log.Log(logging.LogLevelDebug, "sasl authentication succeeded", "mechanism", mech.Name())
			return nil
		}
		lastErr = err
		s.log.Log(logging.LogLevelDebug, "sasl mechanism rejected, trying next", "mechanism", mech.Name(), "err", err)
	}
	return fmt.Errorf("session: all sasl mechanisms rejected: %w", lastErr)
}

// listMechs issues SASL_LIST_MECHS and returns the set of mechanism names
// the server advertised in its space-separated response body (§4.1,
// §4.2(b)).
func (s *Session) listMechs(ctx context.Context) (map[string]bool, error) {
	resp, err := s.Do(ctx, Frame{
		Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpSASLListMechs},
	})
	if err != nil {
		return nil, err
	}
	if resp.Header.Status() != 0 {
		return nil, fmt.Errorf("session: sasl_list_mechs rejected with status 0x%02x", resp.Header.Status())
	}
	supported := make(map[string]bool)
	for _, name := range strings.Fields(string(resp.Value)) {
		supported[name] = true
	}
	return supported, nil
}

func (s *Session) authenticateWith(ctx context.Context, mech sasl.Mechanism) error {
	session, clientFirst, err := mech.Start(ctx, s.opts.Address)
	if err != nil {
		return err
	}

	req := Frame{
		Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpSASLAuth},
		Key:    []byte(mech.Name()),
		Value:  clientFirst,
	}

	for {
		resp, err := s.Do(ctx, req)
		if err != nil {
			return err
		}
		switch resp.Header.Status() {
		case 0:
			return nil
		case 0x21: // AUTH_CONTINUE
			next, done, stepErr := session.Step(resp.Value)
			if stepErr != nil {
				return stepErr
			}
			if done {
				return nil
			}
			req = Frame{
				Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpSASLStep},
				Key:    []byte(mech.Name()),
				Value:  next,
			}
		default:
			return fmt.Errorf("session: sasl step rejected with status 0x%02x", resp.Header.Status())
		}
	}
}

// selectBucket issues SELECT_BUCKET for name (§4.1 "optional bucket
// selection").
func (s *Session) selectBucket(ctx context.Context, name string) error {
	req := Frame{
		Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpSelectBucket},
		Key:    []byte(name),
	}
	resp, err := s.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("session: select_bucket: %w", err)
	}
	if resp.Header.Status() != 0 {
		return fmt.Errorf("session: select_bucket %q rejected with status 0x%02x", name, resp.Header.Status())
	}
	return nil
}
