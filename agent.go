// Package gocbcorex is the top-level cluster façade (C9): Agent (one
// bucket's connect -> operate -> close lifecycle) and ClusterAgent (the
// same for bucket-less, cluster-level operations). It wires together
// internal/session, internal/topology, internal/dispatch, internal/retry
// and internal/metrics exactly the way the teacher's Client/NewClient
// wires together broker, consumer, and metadata maintenance.
//
// Grounded on the teacher's (twmb/kafka-go) Client construction and
// background-goroutine bookkeeping: a root context/cancel pair owned by
// the client, a background metadata-maintenance goroutine
// (updateMetadataLoop) started at construction time and stopped by
// Close, generalized here to the topology Manager's Run loop.
package gocbcorex

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/couchbaselabs/gocbcorex/internal/dispatch"
	"github.com/couchbaselabs/gocbcorex/internal/kvproto"
	"github.com/couchbaselabs/gocbcorex/internal/logging"
	"github.com/couchbaselabs/gocbcorex/internal/metrics"
	"github.com/couchbaselabs/gocbcorex/internal/sasl"
	"github.com/couchbaselabs/gocbcorex/internal/session"
	"github.com/couchbaselabs/gocbcorex/internal/topology"
	"github.com/couchbaselabs/gocbcorex/kverr"
)

// Agent is a connected handle to one bucket: it owns a pool of
// per-node sessions, the bucket's topology manager, the collection
// manifest, and the operation dispatcher built over all three (§4.9
// "connect -> open_bucket -> operate -> close").
type Agent struct {
	cfg cfg

	ctx    context.Context
	cancel context.CancelFunc

	manager  *topology.Manager
	manifest *topology.ManifestTracker
	resolver *collectionResolver
	sessions *sessionPool
	dispatch *dispatch.Dispatcher
	meter    *metrics.Recorder

	closeOnce sync.Once
}

// CreateAgent connects to the cluster named in opts' seed addresses,
// opens the configured bucket, bootstraps topology, and returns a ready
// Agent (§4.9 "connect"). The Agent's own context governs every
// background goroutine it owns; callers must call Close to stop them.
func CreateAgent(ctx context.Context, opts ...Opt) (*Agent, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	agentCtx, cancel := context.WithCancel(context.Background())

	sessions := newSessionPool(c)
	manifest := topology.NewManifestTracker()
	resolver := &collectionResolver{sessions: sessions, manifest: manifest, waitTimeout: c.manifestWait}
	meter := metrics.NewRecorder(nil)

	fetcher := &cccpFetcher{cfg: c, sessions: sessions}
	manager := topology.NewManager(fetcher, c.bucket, c.pollInterval)

	sessions.setManager(manager)

	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, c.connectTimeout)
	defer bootstrapCancel()
	if err := manager.Bootstrap(bootstrapCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("gocbcorex: bootstrap: %w", err)
	}
	sessions.setNodes(manager.Nodes())
	manager.DetermineAlternateNetwork(fetcher.BootstrapHost())

	go manager.Run(agentCtx)

	d := &dispatch.Dispatcher{
		Sessions: sessions,
		Locator:  manager.Locator(),
		Resolver: resolver,
		Manager:  manager,
		Strategy: c.strategy,
		Log:      c.logger,
	}

	a := &Agent{
		cfg:      c,
		ctx:      agentCtx,
		cancel:   cancel,
		manager:  manager,
		manifest: manifest,
		resolver: resolver,
		sessions: sessions,
		dispatch: d,
		meter:    meter,
	}
	return a, nil
}

// Close tears down every session and stops the topology poll loop (§4.9
// "close").
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		a.cancel()
		a.sessions.closeAll()
	})
	return nil
}

// Get, Set, Add, Replace, Delete, Increment, Decrement, Append, Prepend,
// LookupIn, MutateIn, GetAnyReplica and GetAllReplicas expose the C6
// operation dispatcher's surface directly; Agent adds nothing beyond
// connection/topology ownership (§4.9 "operate").

func (a *Agent) Get(ctx context.Context, scope, collection string, key []byte) (dispatch.Document, error) {
	return a.dispatch.Get(ctx, scope, collection, key)
}

// Durability is the caller-facing replication guarantee for a mutation
// (§6 "Durability"), mirroring dispatch.Durability at the façade boundary
// so callers outside internal/ never import internal/dispatch directly.
type Durability = dispatch.Durability

func (a *Agent) Set(ctx context.Context, scope, collection string, key []byte, value []byte, flags uint32, expiry time.Duration, cas uint64, durability Durability) (dispatch.MutationResult, error) {
	return a.dispatch.Set(ctx, scope, collection, key, value, flags, toWireExpiry(expiry), durability)
}

func (a *Agent) Add(ctx context.Context, scope, collection string, key []byte, value []byte, flags uint32, expiry time.Duration, durability Durability) (dispatch.MutationResult, error) {
	return a.dispatch.Add(ctx, scope, collection, key, value, flags, toWireExpiry(expiry), durability)
}

func (a *Agent) Replace(ctx context.Context, scope, collection string, key []byte, value []byte, flags uint32, expiry time.Duration, cas uint64, durability Durability) (dispatch.MutationResult, error) {
	return a.dispatch.Replace(ctx, scope, collection, key, value, flags, toWireExpiry(expiry), cas, durability)
}

func (a *Agent) Delete(ctx context.Context, scope, collection string, key []byte, cas uint64, durability Durability) (dispatch.MutationResult, error) {
	return a.dispatch.Delete(ctx, scope, collection, key, cas, durability)
}

func (a *Agent) Append(ctx context.Context, scope, collection string, key, value []byte, cas uint64, durability Durability) (dispatch.MutationResult, error) {
	return a.dispatch.Append(ctx, scope, collection, key, value, cas, durability)
}

func (a *Agent) Prepend(ctx context.Context, scope, collection string, key, value []byte, cas uint64, durability Durability) (dispatch.MutationResult, error) {
	return a.dispatch.Prepend(ctx, scope, collection, key, value, cas, durability)
}

// Increment atomically adds delta to a counter document. If hasInitial is
// false, a missing document is never created and the call surfaces
// document_not_found instead of seeding one with initial (§6 "increment",
// §8 invariant 5).
func (a *Agent) Increment(ctx context.Context, scope, collection string, key []byte, delta, initial uint64, hasInitial bool, expiry time.Duration, durability Durability) (dispatch.CounterResult, error) {
	return a.dispatch.Increment(ctx, scope, collection, key, delta, initial, hasInitial, toWireExpiry(expiry), durability)
}

// Decrement subtracts delta from a counter document, with the same
// create-if-missing semantics as Increment (§6 "decrement").
func (a *Agent) Decrement(ctx context.Context, scope, collection string, key []byte, delta, initial uint64, hasInitial bool, expiry time.Duration, durability Durability) (dispatch.CounterResult, error) {
	return a.dispatch.Decrement(ctx, scope, collection, key, delta, initial, hasInitial, toWireExpiry(expiry), durability)
}

// wireExpiryThreshold is the memcached-protocol cutover: a 32-bit expiry
// value at or below 30 days is a relative offset in seconds from now; above
// it, the server treats the same field as an absolute Unix timestamp (§6
// "expiry relative-vs-absolute conversion").
const wireExpiryThreshold = 30 * 24 * time.Hour

// toWireExpiry converts a caller-supplied relative expiry into the wire's
// 32-bit seconds field, switching to an absolute Unix timestamp once the
// relative duration would exceed the protocol's 30-day threshold.
func toWireExpiry(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	if d <= wireExpiryThreshold {
		return uint32(d / time.Second)
	}
	return uint32(time.Now().Add(d).Unix())
}

func (a *Agent) GetAnyReplica(ctx context.Context, scope, collection string, key []byte) (dispatch.ReplicaDocument, error) {
	return a.dispatch.GetAnyReplica(ctx, scope, collection, key)
}

func (a *Agent) GetAllReplicas(ctx context.Context, scope, collection string, key []byte) ([]dispatch.ReplicaDocument, error) {
	return a.dispatch.GetAllReplicas(ctx, scope, collection, key)
}

func (a *Agent) LookupIn(ctx context.Context, scope, collection string, key []byte, specs []kvproto.LookupSpec) ([]kvproto.LookupResult, error) {
	return a.dispatch.LookupIn(ctx, scope, collection, key, specs)
}

func (a *Agent) MutateIn(ctx context.Context, scope, collection string, key []byte, specs []kvproto.MutationSpec, semantics dispatch.StoreSemantics, cas uint64, durability Durability) ([]kvproto.MutationResult, dispatch.MutationResult, error) {
	return a.dispatch.MutateIn(ctx, scope, collection, key, specs, semantics, cas, durability)
}

// sessionPool implements dispatch.SessionPool: one lazily-dialed
// *session.Session per node index, redialed on demand if the prior
// connection died. Grounded on the teacher's broker.loadConnection
// lazy-connect-and-reuse shape (broker.go:337), generalized from one
// connection per Kafka broker to one per Couchbase node.
type sessionPool struct {
	cfg cfg

	mu      sync.Mutex
	nodes   []topology.Node
	manager *topology.Manager
	conns   map[int32]*session.Session
	addrs   map[int32]string
}

func newSessionPool(c cfg) *sessionPool {
	return &sessionPool{cfg: c, conns: make(map[int32]*session.Session), addrs: make(map[int32]string)}
}

func (p *sessionPool) setNodes(nodes []topology.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = nodes
}

// setManager records the topology manager so SessionForNode can resolve
// each node's address through the manager's sticky alternate network
// (§4.4 "Alternate addresses") instead of always dialing the canonical
// hostname.
func (p *sessionPool) setManager(m *topology.Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manager = m
}

func (p *sessionPool) SessionForNode(nodeIndex int32) (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sess, ok := p.conns[nodeIndex]; ok && sess.State() != session.StateClosed {
		return sess, nil
	}
	if int(nodeIndex) < 0 || int(nodeIndex) >= len(p.nodes) {
		return nil, fmt.Errorf("gocbcorex: no such node index %d", nodeIndex)
	}
	node := p.nodes[nodeIndex]
	manager := p.manager

	useSSL := p.cfg.tlsConfig != nil
	var host string
	var port int
	if manager != nil {
		host, port = manager.ResolveAddress(node, useSSL)
	} else {
		host, port = node.Hostname, node.KVPort
		if useSSL {
			port = node.SSLKVPort
		}
	}

	addr := splitHostPort(host, port)
	sess, err := p.dial(addr, useSSL)
	if err != nil {
		return nil, err
	}
	p.conns[nodeIndex] = sess
	p.addrs[nodeIndex] = addr
	return sess, nil
}

func (p *sessionPool) dial(addr string, useSSL bool) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.connectTimeout)
	defer cancel()

	var tlsConfig *tls.Config
	if useSSL {
		tlsConfig = p.cfg.tlsConfig
	}

	return session.Dial(ctx, session.Options{
		Address:        addr,
		TLSConfig:      tlsConfig,
		Mechanisms:     saslMechanisms(p.cfg),
		Bucket:         p.cfg.bucket,
		ClientID:       "gocbcorex",
		Logger:         p.cfg.logger,
		ConnectTimeout: p.cfg.connectTimeout,
	})
}

// saslMechanisms builds the ordered mechanism preference list for a
// session dial (§4.2(b)): OAUTHBEARER first when a token is configured,
// then SCRAM-SHA-512, falling back through SHA-256 and SHA-1, with PLAIN
// last. authenticate() narrows this down to whichever the server
// actually advertises via SASL_LIST_MECHS.
func saslMechanisms(c cfg) []sasl.Mechanism {
	var mechanisms []sasl.Mechanism
	if c.oauthBearerToken != "" {
		mechanisms = append(mechanisms, sasl.OAuthBearer{Token: c.oauthBearerToken})
	}
	mechanisms = append(mechanisms,
		sasl.NewScramSHA512(c.username, c.password),
		sasl.NewScramSHA256(c.username, c.password),
		sasl.NewScramSHA1(c.username, c.password),
		sasl.Plain{Username: c.username, Password: c.password},
	)
	return mechanisms
}

func (p *sessionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sess := range p.conns {
		sess.Close()
	}
}

// collectionResolver implements dispatch.CollectionResolver: the default
// collection resolves to UID 0 without a round trip; anything else is
// looked up via GET_COLLECTION_ID against an arbitrary live session and
// cached. If that lookup reports the manifest as outdated, it blocks on
// the manifest tracker and then retries the lookup once (§4.4).
type collectionResolver struct {
	sessions *sessionPool
	manifest *topology.ManifestTracker

	waitTimeout time.Duration

	mu    sync.RWMutex
	cache map[string]uint32
}

func (r *collectionResolver) ResolveCollectionID(ctx context.Context, scope, collection string) (uint32, error) {
	if (scope == "" || scope == "_default") && (collection == "" || collection == "_default") {
		return 0, nil
	}

	key := scope + "." + collection
	r.mu.RLock()
	if uid, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return uid, nil
	}
	r.mu.RUnlock()

	sess, err := r.sessions.SessionForNode(0)
	if err != nil {
		return 0, err
	}

	path := scope + "." + collection
	resp, err := sess.Do(ctx, session.Frame{
		Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpGetCollectionID},
		Key:    []byte(path),
	})
	if err != nil {
		return 0, err
	}
	status := kverr.Status(resp.Header.Status())
	if status == kverr.StatusCollectionOutdated || status == kverr.StatusNoCollectionsManifest {
		// This session's manifest hasn't caught up to the collection
		// we're resolving yet; block until the tracker observes a newer
		// one (from any session) or waitTimeout elapses, then retry the
		// lookup once (§4.4 "awaitManifestAtLeast").
		if waitErr := r.manifest.AwaitAtLeast(ctx, sess.ManifestUID()+1, r.waitTimeout); waitErr != nil {
			return 0, kverr.ErrUnambiguousTimeout
		}
		resp, err = sess.Do(ctx, session.Frame{
			Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpGetCollectionID},
			Key:    []byte(path),
		})
		if err != nil {
			return 0, err
		}
		status = kverr.Status(resp.Header.Status())
	}
	if status != kverr.StatusSuccess {
		if err, ok := kverr.ErrorForStatus(status); ok {
			return 0, err
		}
		return 0, kverr.ErrTemporaryFailure
	}
	if len(resp.Extras) < 12 {
		return 0, kverr.ErrParsingFailure
	}
	manifestUID := beUint64(resp.Extras[0:8])
	collectionUID := beUint32(resp.Extras[8:12])

	r.manifest.Observe(manifestUID)
	sess.ObserveManifestUID(manifestUID)

	r.mu.Lock()
	if r.cache == nil {
		r.cache = make(map[string]uint32)
	}
	r.cache[key] = collectionUID
	r.mu.Unlock()

	return collectionUID, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b[:8] {
		v = v<<8 | uint64(c)
	}
	return v
}

func beUint32(b []byte) uint32 {
	var v uint32
	for _, c := range b[:4] {
		v = v<<8 | uint32(c)
	}
	return v
}

// cccpFetcher implements topology.Fetcher over an existing KV session
// (CCCP: cluster-config-carried-over-the-protocol), issuing
// GET_CLUSTER_CONFIG and decoding the bucket config JSON the server
// returns (§4.2 "Bootstrap").
type cccpFetcher struct {
	cfg      cfg
	sessions *sessionPool

	mu       sync.Mutex
	boot     *session.Session
	bootHost string
}

// BootstrapHost returns the hostname (no port) of the seed address the
// bootstrap connection actually reached, or "" before the first
// successful dial. Used to pick the sticky alternate-address network
// (§4.2, topology.Manager.DetermineAlternateNetwork).
func (f *cccpFetcher) BootstrapHost() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bootHost
}

// bucketConfigJSON mirrors the subset of a Couchbase terse bucket config
// this client needs: node addresses and the vbucket server map.
type bucketConfigJSON struct {
	Rev   int64 `json:"rev"`
	Nodes []struct {
		Hostname string `json:"hostname"`
		Ports    struct {
			Direct int `json:"direct"`
			SSL    int `json:"sslDirect"`
		} `json:"ports"`
		AlternateAddresses map[string]struct {
			Hostname string `json:"hostname"`
			Ports    struct {
				Direct int `json:"kv"`
				SSL    int `json:"kvSSL"`
			} `json:"ports"`
		} `json:"alternateAddresses"`
	} `json:"nodesExt"`
	VBucketServerMap struct {
		VBucketMap [][]int32 `json:"vBucketMap"`
	} `json:"vBucketServerMap"`
}

func (f *cccpFetcher) FetchClusterMap(ctx context.Context, bucket string) (*topology.ClusterMap, error) {
	sess, err := f.bootSession(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := sess.Do(ctx, session.Frame{
		Header: kvproto.Header{Magic: kvproto.MagicReq, Opcode: kvproto.OpGetClusterConfig},
	})
	if err != nil {
		return nil, err
	}
	if status := kverr.Status(resp.Header.Status()); status != kverr.StatusSuccess {
		return nil, kverr.ErrTemporaryFailure
	}

	var raw bucketConfigJSON
	if err := json.Unmarshal(resp.Value, &raw); err != nil {
		return nil, fmt.Errorf("gocbcorex: decoding cluster config: %w", err)
	}

	nodes := make([]topology.Node, len(raw.Nodes))
	for i, n := range raw.Nodes {
		node := topology.Node{
			Hostname:     n.Hostname,
			KVPort:       n.Ports.Direct,
			SSLKVPort:    n.Ports.SSL,
			AltAddresses: make(map[string]topology.AltAddress),
		}
		for name, alt := range n.AlternateAddresses {
			node.AltAddresses[name] = topology.AltAddress{
				Hostname:  alt.Hostname,
				KVPort:    alt.Ports.Direct,
				SSLKVPort: alt.Ports.SSL,
			}
		}
		nodes[i] = node
	}

	partitions := make([]topology.PartitionEntry, len(raw.VBucketServerMap.VBucketMap))
	for i, row := range raw.VBucketServerMap.VBucketMap {
		entry := topology.PartitionEntry{ActiveNodeIndex: topology.NoActiveNode}
		if len(row) > 0 {
			entry.ActiveNodeIndex = row[0]
			if len(row) > 1 {
				entry.ReplicaNodeIndices = row[1:]
			}
		}
		partitions[i] = entry
	}

	return &topology.ClusterMap{
		Nodes:  nodes,
		Bucket: bucket,
		Map: &topology.PartitionMap{
			ID:         topology.MapID{Epoch: 0, Revision: raw.Rev},
			Partitions: partitions,
		},
	}, nil
}

// bootSession returns a session to any seed node, dialing the first
// reachable seed address on first use (§4.2 "Bootstrap").
func (f *cccpFetcher) bootSession(ctx context.Context) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.boot != nil && f.boot.State() != session.StateClosed {
		return f.boot, nil
	}

	var lastErr error
	for _, addr := range f.cfg.addresses {
		useSSL := f.cfg.tlsConfig != nil
		dialCtx, cancel := context.WithTimeout(ctx, f.cfg.connectTimeout)
		var tlsConfig *tls.Config
		if useSSL {
			tlsConfig = f.cfg.tlsConfig
		}
		sess, err := session.Dial(dialCtx, session.Options{
			Address:        addr,
			TLSConfig:      tlsConfig,
			Mechanisms:     saslMechanisms(f.cfg),
			ClientID:       "gocbcorex",
			Logger:         f.cfg.logger,
			ConnectTimeout: f.cfg.connectTimeout,
		})
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		f.boot = sess
		if h, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
			f.bootHost = h
		} else {
			f.bootHost = addr
		}
		return sess, nil
	}
	return nil, fmt.Errorf("gocbcorex: no seed address reachable: %w", lastErr)
}
