package topology

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Node is one cluster node's addressing information relevant to KV
// routing: its canonical hostname plus the alternate (external) address
// set advertised for sticky network selection (§3 "Node", §4.2
// "Alternate addresses").
type Node struct {
	Hostname     string
	KVPort       int
	SSLKVPort    int
	AltAddresses map[string]AltAddress
}

// AltAddress is one named alternate network's addressing for a node
// (§4.2).
type AltAddress struct {
	Hostname  string
	KVPort    int
	SSLKVPort int
}

// ClusterMap is one snapshot of cluster topology: the node list plus the
// partition table addressed into it (§3 "Cluster map").
type ClusterMap struct {
	Nodes    []Node
	Bucket   string
	UUID     string
	Map      *PartitionMap
}

// Fetcher retrieves a cluster map from a node, e.g. via the
// CCCP GET_CLUSTER_CONFIG KV op or the HTTP streaming terse-bucket-config
// endpoint (§4.2). The module's only implementation is the root package's
// cccpFetcher (CCCP over a KV session); there is no HTTP-streaming one.
type Fetcher interface {
	FetchClusterMap(ctx context.Context, bucket string) (*ClusterMap, error)
}

// Manager owns the bootstrap and steady-state maintenance of a bucket's
// cluster map (C4), applying each fetched map to a Locator (§4.2).
// Collection-manifest waits are handled by ManifestTracker, not here.
//
// Grounded on other_examples/b4e3761a_rodaine-franz-go__pkg-kgo-metadata.go's
// poll loop (a goroutine that refetches metadata on a timer and on
// explicit trigger, applies it if newer, and wakes waiters), adapted from
// topic-partition metadata to a single bucket's partition map.
type Manager struct {
	fetcher Fetcher
	bucket  string
	locator *Locator

	pollInterval time.Duration

	mu           sync.Mutex
	altNetwork   string
	nodes        []Node
	manifestUID  uint64
	manifestCond *sync.Cond

	triggerCh chan struct{}
}

// NewManager constructs a topology manager for one bucket. pollInterval
// is the steady-state refresh period (§4.2 default 2500ms, matching the
// CCCP streaming fallback cadence in original_source).
func NewManager(fetcher Fetcher, bucket string, pollInterval time.Duration) *Manager {
	m := &Manager{
		fetcher:      fetcher,
		bucket:       bucket,
		locator:      NewLocator(),
		pollInterval: pollInterval,
		triggerCh:    make(chan struct{}, 1),
	}
	m.manifestCond = sync.NewCond(&m.mu)
	return m
}

// Locator returns the manager's partition locator (read-mostly; safe for
// concurrent use by the dispatcher).
func (m *Manager) Locator() *Locator { return m.locator }

// Bootstrap performs the initial fetch-and-apply, blocking until the
// first map is accepted or ctx is done (§4.2 "Bootstrap").
func (m *Manager) Bootstrap(ctx context.Context) error {
	cm, err := m.fetcher.FetchClusterMap(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("topology: bootstrap fetch: %w", err)
	}
	m.apply(cm)
	return nil
}

// Run is the steady-state poll loop (§4.2 "Steady state"): it refetches
// the map every pollInterval, and immediately on Trigger, applying each
// result to the locator. Run blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refetch(ctx)
		case <-m.triggerCh:
			m.refetch(ctx)
		}
	}
}

// Trigger requests an out-of-band refetch, used when the dispatcher
// observes a kv_not_my_vbucket response (§4.3 "the session... triggers
// an out-of-band topology refetch"). Non-blocking: a trigger already
// pending coalesces with this one.
func (m *Manager) Trigger() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

func (m *Manager) refetch(ctx context.Context) {
	cm, err := m.fetcher.FetchClusterMap(ctx, m.bucket)
	if err != nil {
		// A failed refresh is not fatal: the prior map stays in force
		// until the next successful poll or trigger (§4.2).
		return
	}
	m.apply(cm)
}

func (m *Manager) apply(cm *ClusterMap) {
	accepted := m.locator.Apply(cm.Map)
	if !accepted {
		return
	}
	m.mu.Lock()
	m.nodes = cm.Nodes
	m.mu.Unlock()
}

// Nodes returns the current node list from the last accepted map.
func (m *Manager) Nodes() []Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// SetAlternateNetwork fixes the alternate-address network this manager
// resolves node addresses against, chosen once at bootstrap based on
// which network's hostnames were reachable (§4.2 "sticky ... for the
// lifetime of the connection").
func (m *Manager) SetAlternateNetwork(network string) {
	m.mu.Lock()
	m.altNetwork = network
	m.mu.Unlock()
}

// DetermineAlternateNetwork picks the sticky alternate-address network by
// checking which network's address actually matches the host the
// bootstrap connection reached (§4.2 "sticky ... for the lifetime of the
// connection"). If no node's canonical hostname matches seedHost, but one
// of its alternate addresses does, that network becomes sticky for every
// subsequent ResolveAddress call; otherwise canonical addressing is used
// (no alternate network set).
func (m *Manager) DetermineAlternateNetwork(seedHost string) {
	m.mu.Lock()
	nodes := m.nodes
	m.mu.Unlock()

	for _, n := range nodes {
		if n.Hostname == seedHost {
			return
		}
	}
	for _, n := range nodes {
		for network, alt := range n.AltAddresses {
			if alt.Hostname == seedHost {
				m.SetAlternateNetwork(network)
				return
			}
		}
	}
}

// ResolveAddress returns the (hostname, kvPort) for a node under the
// manager's sticky alternate network, falling back to the node's
// canonical address if no alternate is set or the network is unnamed
// (§4.2 "Alternate addresses").
func (m *Manager) ResolveAddress(node Node, useSSL bool) (string, int) {
	m.mu.Lock()
	network := m.altNetwork
	m.mu.Unlock()

	if network != "" {
		if alt, ok := node.AltAddresses[network]; ok {
			if useSSL {
				return alt.Hostname, alt.SSLKVPort
			}
			return alt.Hostname, alt.KVPort
		}
	}
	if useSSL {
		return node.Hostname, node.SSLKVPort
	}
	return node.Hostname, node.KVPort
}
