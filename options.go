package gocbcorex

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/couchbaselabs/gocbcorex/internal/logging"
	"github.com/couchbaselabs/gocbcorex/internal/retry"
)

// cfg is the private configuration struct every Opt mutates, exactly as
// the teacher's kgo.Client builds a private cfg from a slice of kgo.Opt
// (§6 "Configuration").
type cfg struct {
	addresses      []string
	username       string
	password       string
	bucket         string
	tlsConfig      *tls.Config
	logger         logging.Logger
	connectTimeout time.Duration
	pollInterval   time.Duration
	manifestWait   time.Duration
	strategy       retry.Strategy
	oauthBearerToken string // empty: OAUTHBEARER is not offered
	durableTimeout time.Duration
}

// defaultDurableTimeout is kv_durable_timeout's default (§6 "Connection
// string"), matching the 10s default every data-service durability wait
// uses absent an override.
const defaultDurableTimeout = 10 * time.Second

func defaultCfg() cfg {
	return cfg{
		connectTimeout: 7 * time.Second,
		pollInterval:   2500 * time.Millisecond,
		manifestWait:   2500 * time.Millisecond,
		logger:         logging.Nop,
		strategy:       retry.NewBestEffortRetryStrategy(),
		durableTimeout: defaultDurableTimeout,
	}
}

// validate reports the first configuration problem found, mirroring the
// teacher's cfg.validate() gate before NewClient returns (§6).
func (c cfg) validate() error {
	if len(c.addresses) == 0 {
		return fmt.Errorf("gocbcorex: no seed addresses configured")
	}
	if c.bucket == "" {
		return fmt.Errorf("gocbcorex: no bucket configured")
	}
	return nil
}

// Opt configures an Agent/ClusterAgent, mirroring the teacher's kgo.Opt
// functional-option pattern (§6 "Configuration").
type Opt interface {
	apply(*cfg)
}

type optFunc func(*cfg)

func (f optFunc) apply(c *cfg) { f(c) }

// SeedAddresses sets the initial node addresses used to bootstrap
// topology discovery (host:port pairs, KV port by default).
func SeedAddresses(addrs ...string) Opt {
	return optFunc(func(c *cfg) { c.addresses = addrs })
}

// Credentials sets the username/password used for SASL authentication
// against every session this client opens.
func Credentials(username, password string) Opt {
	return optFunc(func(c *cfg) { c.username = username; c.password = password })
}

// Bucket sets the bucket this Agent operates against.
func Bucket(bucket string) Opt {
	return optFunc(func(c *cfg) { c.bucket = bucket })
}

// WithTLSConfig enables TLS for every session dialed by this client.
func WithTLSConfig(tc *tls.Config) Opt {
	return optFunc(func(c *cfg) { c.tlsConfig = tc })
}

// WithLogger sets the structured logger every component logs through.
func WithLogger(l logging.Logger) Opt {
	return optFunc(func(c *cfg) { c.logger = l })
}

// WithConnectTimeout bounds how long dialing and the handshake may take
// per session.
func WithConnectTimeout(d time.Duration) Opt {
	return optFunc(func(c *cfg) { c.connectTimeout = d })
}

// WithPollInterval sets the steady-state topology refresh period (§4.2).
func WithPollInterval(d time.Duration) Opt {
	return optFunc(func(c *cfg) { c.pollInterval = d })
}

// WithRetryStrategy overrides the default best-effort retry strategy
// (SPEC_FULL.md "SUPPLEMENTED FEATURES": pluggable strategy value).
func WithRetryStrategy(s retry.Strategy) Opt {
	return optFunc(func(c *cfg) { c.strategy = s })
}

// WithOAuthBearerToken offers the OAUTHBEARER mechanism, ahead of
// username/password mechanisms in SASL preference order, carrying token
// as the bearer credential (§4.2(b)).
func WithOAuthBearerToken(token string) Opt {
	return optFunc(func(c *cfg) { c.oauthBearerToken = token })
}

// WithDurableTimeout overrides kv_durable_timeout's default (§6). The
// value is stored in the configuration only: durable mutations take their
// framing-extras timeout from the Durability passed to each call, and
// this setting is not applied to them.
func WithDurableTimeout(d time.Duration) Opt {
	return optFunc(func(c *cfg) { c.durableTimeout = d })
}
