// Package httpx implements C7: a per-service HTTP dispatcher with a
// pooled, idle-evicting *http.Client per endpoint, used for the query,
// analytics, search, views, and management HTTP services (§4.7).
//
// Grounded on the teacher's (twmb/kafka-go) broker.loadConnection
// (broker.go:337-374): lazily dial a connection the first time it is
// needed, reuse it afterward, and let it go idle/expire rather than
// eagerly maintaining a live connection to every known endpoint.
package httpx

import (
	"net/http"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a pooled client is kept around after its
// last use before being evicted (§4.7 default: 4.5s).
const DefaultIdleTimeout = 4500 * time.Millisecond

// Pool lazily creates and reuses one *http.Client per service endpoint,
// evicting clients that have been idle past IdleTimeout.
type Pool struct {
	IdleTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*pooledClient
}

type pooledClient struct {
	client   *http.Client
	lastUsed time.Time
}

// NewPool returns a Pool using DefaultIdleTimeout.
func NewPool() *Pool {
	return &Pool{IdleTimeout: DefaultIdleTimeout, clients: make(map[string]*pooledClient)}
}

// Client returns the pooled *http.Client for endpoint, creating one if
// none exists yet or the existing one has been idle past IdleTimeout
// (§4.7 "idle-timeout eviction").
func (p *Pool) Client(endpoint string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if pc, ok := p.clients[endpoint]; ok && now.Sub(pc.lastUsed) < p.IdleTimeout {
		pc.lastUsed = now
		return pc.client
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     p.idleTimeout(),
		},
	}
	p.clients[endpoint] = &pooledClient{client: client, lastUsed: now}
	return client
}

func (p *Pool) idleTimeout() time.Duration {
	if p.IdleTimeout > 0 {
		return p.IdleTimeout
	}
	return DefaultIdleTimeout
}

// Evict removes every pooled client idle past IdleTimeout, closing their
// idle connections. Callers run this on a timer; it is not automatic,
// mirroring the teacher's own broker connections (which are reaped by
// explicit die() calls, not a background sweep).
func (p *Pool) Evict() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for endpoint, pc := range p.clients {
		if now.Sub(pc.lastUsed) >= p.idleTimeout() {
			pc.client.CloseIdleConnections()
			delete(p.clients, endpoint)
		}
	}
}
