package gocbcorex

import (
	"context"
	"fmt"
	"sync"
)

// ClusterAgent is the cluster-level handle: it holds the seed addresses
// and credentials shared by every bucket, and lazily opens one Agent per
// bucket on demand (§4.9 "connect -> open_bucket* -> operate* -> close").
// Grounded on the teacher's single Client owning many per-topic/partition
// consumers; here the analogous many-of-one is many per-bucket Agents
// under one set of cluster-level credentials.
type ClusterAgent struct {
	cfg cfg

	mu      sync.Mutex
	buckets map[string]*Agent
	closed  bool
}

// CreateClusterAgent validates cluster-level configuration (seed
// addresses and credentials) without opening any bucket yet. Opts that
// set a Bucket are applied as the default for OpenBucket calls that don't
// override it.
func CreateClusterAgent(opts ...Opt) (*ClusterAgent, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if len(c.addresses) == 0 {
		return nil, fmt.Errorf("gocbcorex: no seed addresses configured")
	}
	return &ClusterAgent{cfg: c, buckets: make(map[string]*Agent)}, nil
}

// OpenBucket connects an Agent for bucket, reusing an already-open one if
// this ClusterAgent has seen the same bucket name before (§4.9
// "open_bucket").
func (ca *ClusterAgent) OpenBucket(ctx context.Context, bucket string) (*Agent, error) {
	if bucket == "" {
		bucket = ca.cfg.bucket
	}

	ca.mu.Lock()
	if ca.closed {
		ca.mu.Unlock()
		return nil, fmt.Errorf("gocbcorex: cluster agent is closed")
	}
	if a, ok := ca.buckets[bucket]; ok {
		ca.mu.Unlock()
		return a, nil
	}
	ca.mu.Unlock()

	bucketCfg := ca.cfg
	bucketCfg.bucket = bucket

	opts := []Opt{SeedAddresses(bucketCfg.addresses...), Credentials(bucketCfg.username, bucketCfg.password), Bucket(bucket)}
	if bucketCfg.tlsConfig != nil {
		opts = append(opts, WithTLSConfig(bucketCfg.tlsConfig))
	}
	opts = append(opts,
		WithLogger(bucketCfg.logger),
		WithConnectTimeout(bucketCfg.connectTimeout),
		WithPollInterval(bucketCfg.pollInterval),
		WithRetryStrategy(bucketCfg.strategy),
	)

	a, err := CreateAgent(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gocbcorex: opening bucket %q: %w", bucket, err)
	}

	ca.mu.Lock()
	defer ca.mu.Unlock()
	if ca.closed {
		a.Close()
		return nil, fmt.Errorf("gocbcorex: cluster agent is closed")
	}
	ca.buckets[bucket] = a
	return a, nil
}

// Close closes every bucket Agent this ClusterAgent has opened (§4.9
// "close").
func (ca *ClusterAgent) Close() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	if ca.closed {
		return nil
	}
	ca.closed = true
	for _, a := range ca.buckets {
		a.Close()
	}
	return nil
}
