// Package session implements C2: a single multiplexed connection to one
// data-service node. It owns the HELLO feature negotiation, SASL
// handshake dispatch, optional bucket selection, and the steady-state
// opaque-demultiplexed request/response loop.
//
// Grounded throughout on the teacher's (twmb/kafka-go) broker/brokerCxn
// split in broker.go: writes are serialized by writeMu in the calling
// goroutines (writeFrameLocked, from handleReqs), and a single goroutine
// (readLoop, from handleResps) serially demultiplexes responses off the
// wire. The teacher demuxes by strict read order (Kafka guarantees
// in-order responses per connection); this client demuxes by opaque
// instead, since the KV protocol does not guarantee strict ordering once
// quiet/pipelined requests are in flight (§4.1, §5).
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/logging"
	"github.com/couchbaselabs/gocbcorex/internal/sasl"
)

// State is the session's lifecycle state (§4.2 "Close": "resolving ->
// ... -> closed").
type State int32

const (
	StateResolving State = iota
	StateConnecting
	StateAuthenticating
	StateSelectingBucket
	StateReady
	StateDraining
	StateClosed
)

// ErrSessionClosed is returned for any operation issued against a closed
// or draining session.
var ErrSessionClosed = errors.New("session: closed")

// Options configures a new Session (§4.1 "Handshake").
type Options struct {
	Address      string
	TLSConfig    *tls.Config // nil disables TLS
	Mechanisms   []sasl.Mechanism
	Bucket       string // empty: no bucket selected at handshake time
	ClientID     string
	RequestedFeatures []kvproto.HelloFeature
	Logger       logging.Logger
	ConnectTimeout time.Duration
}

// Session is one live connection to a node, serving KV requests
// concurrently from many callers (§3 "Session").
type Session struct {
	opts Options
	log  logging.Logger

	conn net.Conn

	state int32 // atomic State

	writeMu sync.Mutex // serializes writes, mirroring handleReqs' single-writer discipline
	nextOpaque uint32

	pending *pendingTable

	enabledFeatures map[kvproto.HelloFeature]bool
	errorMap        atomic.Pointer[ErrorMap]

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	manifestUID uint64
}

// Dial establishes a session: TCP connect, optional TLS, HELLO, SASL,
// optional SELECT_BUCKET (§4.1). It blocks until the session reaches
// StateReady or fails.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop
	}

	s := &Session{
		opts:            opts,
		log:             log,
		pending:         newPendingTable(),
		enabledFeatures: make(map[kvproto.HelloFeature]bool),
		done:            make(chan struct{}),
	}
	atomic.StoreInt32(&s.state, int32(StateConnecting))

	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", opts.Address, err)
	}
	if opts.TLSConfig != nil {
		conn = tls.Client(conn, opts.TLSConfig)
	}
	s.conn = conn

	go s.readLoop()
	go s.expiryLoop()

	if err := s.hello(ctx); err != nil {
		s.closeWithErr(err)
		return nil, err
	}

	atomic.StoreInt32(&s.state, int32(StateAuthenticating))
	if err := s.authenticate(ctx); err != nil {
		s.closeWithErr(err)
		return nil, err
	}

	// The error map is only fetchable once FeatureErrorMap has been
	// negotiated; a fetch failure here is non-fatal (§4.2 "Server-driven
	// retry" is a fallback path, not a handshake requirement), so it's
	// logged and otherwise ignored.
	if s.HasFeature(kvproto.FeatureErrorMap) {
		if em, err := FetchErrorMap(ctx, s); err != nil {
			log.Log(logging.LogLevelDebug, "get_error_map failed, server-driven retry fallback disabled", "err", err)
		} else {
			s.errorMap.Store(em)
		}
	}

	if opts.Bucket != "" {
		atomic.StoreInt32(&s.state, int32(StateSelectingBucket))
		if err := s.selectBucket(ctx, opts.Bucket); err != nil {
			s.closeWithErr(err)
			return nil, err
		}
	}

	atomic.StoreInt32(&s.state, int32(StateReady))
	log.Log(logging.LogLevelDebug, "session ready", "addr", opts.Address)
	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(atomic.LoadInt32(&s.state)) }

// HasFeature reports whether the given HELLO feature was accepted by the
// server during the handshake (§4.1).
func (s *Session) HasFeature(f kvproto.HelloFeature) bool {
	return s.enabledFeatures[f]
}

// ManifestUID returns the latest collection-manifest UID observed on any
// response from this connection (§4.4).
func (s *Session) ManifestUID() uint64 { return atomic.LoadUint64(&s.manifestUID) }

// Address returns the node address this session is connected to, for
// attaching to a surfaced error context's last_dispatched_to (§3 "Error
// context").
func (s *Session) Address() string { return s.opts.Address }

// ErrorMap returns the server's error map fetched during the handshake, or
// nil if FeatureErrorMap wasn't negotiated or the fetch failed (§4.2
// "Server-driven retry").
func (s *Session) ErrorMap() *ErrorMap { return s.errorMap.Load() }

// Do sends one request frame and waits for its matched response, subject
// to ctx's deadline, generalizing the teacher's broker.do/waitResp
// synchronous-looking call over an async connection (broker.go:178-217).
func (s *Session) Do(ctx context.Context, f Frame) (Frame, error) {
	if s.State() == StateClosed || s.State() == StateDraining {
		return Frame{}, ErrSessionClosed
	}

	opaque := atomic.AddUint32(&s.nextOpaque, 1)
	f.Header.Opaque = opaque

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	respCh := make(chan frameOrErr, 1)
	s.pending.register(&pendingRequest{
		opaque:   opaque,
		deadline: deadline,
		promise: func(frame Frame, err error) {
			respCh <- frameOrErr{frame, err}
		},
	})

	if err := s.writeFrameLocked(f); err != nil {
		s.pending.complete(opaque, Frame{}, err)
		return Frame{}, err
	}

	select {
	case r := <-respCh:
		return r.frame, r.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.done:
		return Frame{}, s.closeErrOrDefault()
	}
}

type frameOrErr struct {
	frame Frame
	err   error
}

// writeFrameLocked serializes concurrent callers' writes, mirroring the
// teacher's single handleReqs goroutine draining a shared channel; a
// mutex achieves the same single-writer-at-a-time property without an
// extra goroutine hop, since unlike the teacher this client has no
// per-request admission logic to run before the write.
func (s *Session) writeFrameLocked(f Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, f)
}

// readLoop is the demux goroutine: it reads one frame at a time and
// resolves the matching pending request by opaque (§4.1, §4.3).
// Grounded on the teacher's handleResps (broker.go:888), generalized
// from strict read-order matching to explicit opaque lookup.
func (s *Session) readLoop() {
	defer s.closeWithErr(errConnDead)

	for {
		f, err := readFrame(s.conn)
		if err != nil {
			return
		}

		if !s.pending.complete(f.Header.Opaque, f, nil) {
			s.log.Log(logging.LogLevelDebug, "dropping frame with no matching pending request", "opaque", f.Header.Opaque)
		}
	}
}

// ObserveManifestUID advances the session's collection-manifest
// high-water mark if uid is newer than the one currently recorded (§4.4).
// The collection resolver (agent.go) calls this after decoding a
// GET_COLLECTION_ID response, since the manifest UID travels
// in opcode-specific response bodies rather than the generic framing
// extras every response carries.
func (s *Session) ObserveManifestUID(uid uint64) {
	for {
		cur := atomic.LoadUint64(&s.manifestUID)
		if uid <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&s.manifestUID, cur, uid) {
			return
		}
	}
}

// expiryLoop periodically sweeps the pending table for requests whose
// deadline has elapsed, so a caller blocked in Do never waits past its
// own deadline even if the connection never responds at all.
func (s *Session) expiryLoop() {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-timer.C:
			next := s.pending.expireBefore(now, errRequestDeadlineExceeded)
			if next.IsZero() {
				timer.Reset(time.Second)
			} else {
				d := time.Until(next)
				if d < time.Millisecond {
					d = time.Millisecond
				}
				timer.Reset(d)
			}
		}
	}
}

var errConnDead = errors.New("session: connection closed")
var errRequestDeadlineExceeded = errors.New("session: request deadline exceeded")

// Close drains the session: no new requests are admitted, in-flight
// requests are failed, and the underlying connection is closed (§4.2
// "Close").
func (s *Session) Close() error {
	atomic.StoreInt32(&s.state, int32(StateDraining))
	s.closeWithErr(ErrSessionClosed)
	atomic.StoreInt32(&s.state, int32(StateClosed))
	return nil
}

func (s *Session) closeWithErr(err error) {
	s.closeOnce.Do(func() {
		s.closeErr = err
		if s.conn != nil {
			s.conn.Close()
		}
		close(s.done)
		s.pending.drainAll(err)
	})
}

func (s *Session) closeErrOrDefault() error {
	if s.closeErr != nil {
		return s.closeErr
	}
	return ErrSessionClosed
}
