package httpx

import (
	"testing"
	"time"
)

func TestPoolReusesClientWithinIdleWindow(t *testing.T) {
	p := NewPool()
	p.IdleTimeout = time.Minute

	c1 := p.Client("http://node1:8093")
	c2 := p.Client("http://node1:8093")
	if c1 != c2 {
		t.Error("expected the same *http.Client to be reused within the idle window")
	}
}

func TestPoolEvictsExpiredClients(t *testing.T) {
	p := NewPool()
	p.IdleTimeout = time.Nanosecond

	c1 := p.Client("http://node1:8093")
	time.Sleep(time.Millisecond)
	p.Evict()

	c2 := p.Client("http://node1:8093")
	if c1 == c2 {
		t.Error("expected a new client to be created after eviction")
	}
}

func TestPoolSeparatesEndpoints(t *testing.T) {
	p := NewPool()
	c1 := p.Client("http://node1:8093")
	c2 := p.Client("http://node2:8093")
	if c1 == c2 {
		t.Error("expected distinct clients for distinct endpoints")
	}
}
