// Package dispatch implements C6: the operation dispatcher that ties
// together collection resolution, partition location, session dispatch,
// response classification, and retry into the one loop every KV
// operation runs through (§4.3 "resolve-collection -> locate ->
// session.Do -> classify -> retry-or-surface").
//
// Grounded on the teacher's (twmb/kafka-go) broker.do/waitResp
// (broker.go:178-217) for the single synchronous-looking call over an
// async connection, and consumer.go's handleListOrEpochResults for the
// classify-then-maybe-retry shape (check kerr.IsRetriable, requeue the
// load if so, else surface the error to the caller).
package dispatch

import (
	"context"
	"time"

	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/logging"
	"github.com/couchbaselabs/gocbcorex/internal/retry"
	"github.com/couchbaselabs/gocbcorex/internal/session"
	"github.com/couchbaselabs/gocbcorex/internal/topology"
	"github.com/couchbaselabs/gocbcorex/kverr"
)

// SessionPool resolves a node index (as returned by topology.Locate) to a
// live *session.Session, so the dispatcher never deals with dialing or
// connection lifecycle directly (§4.3, §5).
type SessionPool interface {
	SessionForNode(nodeIndex int32) (*session.Session, error)
}

// CollectionResolver maps a (scope, collection) name pair to its current
// collection UID, blocking until the manifest has caught up if necessary
// (§4.4 "awaitManifestAtLeast").
type CollectionResolver interface {
	ResolveCollectionID(ctx context.Context, scope, collection string) (uint32, error)
}

// Dispatcher is C6: the single entry point every KV operation in
// internal/dispatch's sibling files (kv_ops.go, subdoc_ops.go,
// counter_ops.go, replica_ops.go) funnels through.
type Dispatcher struct {
	Sessions   SessionPool
	Locator    *topology.Locator
	Resolver   CollectionResolver
	Manager    *topology.Manager
	Strategy   retry.Strategy
	Log        logging.Logger
}

// Durability is a mutation's requested replication guarantee, carried in
// the frame's framing-extras rather than its opcode-specific extras (§6
// "Durability"). The zero value (Level: kvproto.DurabilityNone) requests
// no durability and adds no framing-extras to the frame at all.
type Durability struct {
	Level   kvproto.DurabilityLevel
	Timeout uint16 // 0 requests the server-configured default
}

// opRequest is the input to execute: a key to route, a function that
// builds the wire frame given the resolved collection UID, and whether
// the operation is idempotent (for retry purposes) and a write (for
// timeout-kind purposes).
type opRequest struct {
	Key         []byte
	Scope       string
	Collection  string
	Idempotent  bool
	IsWrite     bool
	Durability  Durability
	BuildFrame  func(collectionUID uint32) session.Frame
}

// execute runs one operation through resolve -> locate -> dispatch ->
// classify -> retry loop until it succeeds, is given up on, or ctx is
// done (§4.3, §8 invariant 2: "every operation either completes or is
// surfaced as a definite error; the dispatcher never retries silently
// past the deadline").
func (d *Dispatcher) execute(ctx context.Context, req opRequest) (session.Frame, error) {
	attempt := 0
	var retryReasons []string
	var lastSess *session.Session

	doRetry := func(reason retry.Reason) bool {
		if !d.retryAfter(ctx, reason, req, attempt) {
			return false
		}
		retryReasons = append(retryReasons, reason.String())
		attempt++
		return true
	}

	for {
		collectionUID, err := d.Resolver.ResolveCollectionID(ctx, req.Scope, req.Collection)
		if err != nil {
			// A missing scope is reported as-is: no amount of waiting
			// makes a scope exist. A missing collection, though, is
			// indistinguishable from a manifest that simply hasn't
			// propagated here yet, so it's retried like any other
			// kv_collection_outdated condition until the deadline, then
			// surfaced as a timeout rather than collection_not_found.
			if err == kverr.ErrCollectionNotFound {
				if doRetry(retry.ReasonCollectionOutdated) {
					continue
				}
				return session.Frame{}, d.errorContext(kverr.ErrUnambiguousTimeout, attempt, retryReasons, lastSess, nil, nil)
			}
			return session.Frame{}, err
		}

		loc, locErr := d.Locator.Locate(req.Key)
		if locErr != nil {
			if !doRetry(retry.ReasonNotMyVBucket) {
				return session.Frame{}, d.errorContext(kverr.ErrRequestCanceled, attempt, retryReasons, lastSess, nil, nil)
			}
			continue
		}

		sess, err := d.Sessions.SessionForNode(loc.NodeIndex)
		if err != nil {
			if !doRetry(retry.ReasonNodeNotAvailable) {
				return session.Frame{}, err
			}
			continue
		}
		lastSess = sess

		frame := req.BuildFrame(collectionUID)
		frame.Header.StatusOrVBucket = uint16(loc.PartitionID)
		if req.Durability.Level != kvproto.DurabilityNone {
			frame.Header.Magic = kvproto.MagicAltReq
			frame.FramingExtras = kvproto.ReqFramingExtras{
				Durability:        req.Durability.Level,
				HasDurability:     true,
				DurabilityTimeout: req.Durability.Timeout,
			}.Encode(nil)
		}

		resp, err := sess.Do(ctx, frame)
		if err != nil {
			if !doRetry(retry.ReasonSocketNotAvailable) {
				return session.Frame{}, err
			}
			continue
		}

		respExtras := d.decodeRespFramingExtras(resp)

		status := kverr.Status(resp.Header.Status())
		if status == kverr.StatusSuccess {
			return resp, nil
		}

		if status == kverr.StatusNotMyVBucket {
			d.Manager.Trigger()
			if !doRetry(retry.ReasonNotMyVBucket) {
				return session.Frame{}, d.errorContext(classify(status), attempt, retryReasons, sess, &status, respExtras)
			}
			continue
		}
		if status == kverr.StatusCollectionOutdated || status == kverr.StatusNoCollectionsManifest {
			if !doRetry(retry.ReasonCollectionOutdated) {
				return session.Frame{}, d.errorContext(classify(status), attempt, retryReasons, sess, &status, respExtras)
			}
			continue
		}

		surfaceErr, known := kverr.ErrorForStatus(status)
		if !known {
			if em := sess.ErrorMap(); em != nil {
				if reason, retriable := em.ClassifyUnknownStatus(uint16(status)); retriable {
					if doRetry(reason) {
						continue
					}
				}
			}
			surfaceErr = kverr.ErrTemporaryFailure
		}
		if reason, retriable := reasonForError(surfaceErr); retriable {
			if doRetry(reason) {
				continue
			}
		}
		return resp, d.errorContext(surfaceErr, attempt, retryReasons, sess, &status, respExtras)
	}
}

// decodeRespFramingExtras decodes resp's framing-extras (when the response
// used alt-magic framing) and logs the server-side processing duration at
// debug level, C2's "server-duration tracing" responsibility (§4.2).
// Unknown frame-info ids are logged and otherwise ignored (§9 open question
// (c)).
func (d *Dispatcher) decodeRespFramingExtras(resp session.Frame) *kvproto.RespFramingExtras {
	if !resp.Header.Magic.IsAlt() || len(resp.FramingExtras) == 0 {
		return nil
	}
	extras, skipped, err := kvproto.DecodeRespFramingExtras(resp.FramingExtras)
	if err != nil {
		d.Log.Log(logging.LogLevelDebug, "failed to decode response framing-extras", "err", err)
		return nil
	}
	if extras.HasServerDuration {
		d.Log.Log(logging.LogLevelDebug, "server duration", "micros", extras.ServerDuration)
	}
	for _, s := range skipped {
		d.Log.Log(logging.LogLevelDebug, "skipped unknown response framing-extras frame", "id", s.ID, "size", s.Size)
	}
	return &extras
}

// errorContext wraps a surfaced error in the §3/§7 error context that must
// accompany every surfaced result: retry history, where the request was
// last dispatched, the raw status code, and any enhanced error info the
// server attached via response framing-extras.
func (d *Dispatcher) errorContext(err error, attempts int, reasons []string, sess *session.Session, status *kverr.Status, extras *kvproto.RespFramingExtras) error {
	if err == nil {
		return nil
	}
	ec := &kverr.ErrorContext{
		Err:           err,
		RetryAttempts: attempts,
		RetryReasons:  reasons,
	}
	if sess != nil {
		ec.LastDispatchedTo = sess.Address()
	}
	if status != nil {
		code := uint16(*status)
		ec.StatusCode = &code
	}
	if extras != nil && extras.HasErrorContext {
		info := kverr.EnhancedErrorInfo(extras.ErrorContext)
		ec.EnhancedInfo = &info
	}
	return ec
}

// classify converts a response status into the typed §7 error, falling
// back to a generic temporary-failure shape for statuses this client has
// no hardcoded mapping for. execute uses it only for statuses that already
// have a dedicated give-up path (not-my-vbucket, collection-outdated), and
// consults the session's error map directly for everything else (§4.2
// "Server-driven retry"); getFromNode (replica_ops.go) also uses it for
// every non-success replica-read status.
func classify(status kverr.Status) error {
	if err, ok := kverr.ErrorForStatus(status); ok {
		return err
	}
	return kverr.ErrTemporaryFailure
}

// reasonForError maps a surfaced error back to a retry.Reason for errors
// that are always worth a further attempt (§4.5 "Always-retry",
// "Allows non-idempotent retry" tables).
func reasonForError(err error) (retry.Reason, bool) {
	switch {
	case kverr.Is(err, kverr.ErrDocumentLocked):
		return retry.ReasonKVLocked, true
	case kverr.Is(err, kverr.ErrTemporaryFailure):
		return retry.ReasonKVTemporaryFailure, true
	case kverr.Is(err, kverr.ErrDurableWriteInProgress):
		return retry.ReasonKVSyncWriteInProgress, true
	case kverr.Is(err, kverr.ErrDurableWriteReCommitInProgress):
		return retry.ReasonKVSyncWriteReCommitInProgress, true
	}
	return retry.ReasonUnknown, false
}

// retryAfter consults the configured retry.Strategy and either sleeps
// the indicated delay and returns true, or returns false when the
// strategy gives up (§4.5).
func (d *Dispatcher) retryAfter(ctx context.Context, reason retry.Reason, req opRequest, attempt int) bool {
	remaining := time.Until(deadlineOrFar(ctx))
	decision := d.Strategy.Decide(reason, retry.Request{
		Idempotent:        req.Idempotent,
		AttemptCount:      attempt,
		DeadlineRemaining: remaining,
		IsWrite:           req.IsWrite,
	})
	if !decision.Retry {
		return false
	}
	d.Log.Log(logging.LogLevelDebug, "retrying operation", "reason", reason.String(), "attempt", attempt, "delay", decision.Delay)
	select {
	case <-time.After(decision.Delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func deadlineOrFar(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(time.Hour)
}
