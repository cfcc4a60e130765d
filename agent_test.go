package gocbcorex

import (
	"testing"
	"time"

	"github.com/couchbaselabs/gocbcorex/internal/session"
)

func TestToWireExpiryZeroMeansNone(t *testing.T) {
	if got := toWireExpiry(0); got != 0 {
		t.Errorf("toWireExpiry(0) = %d, want 0", got)
	}
	if got := toWireExpiry(-time.Second); got != 0 {
		t.Errorf("toWireExpiry(negative) = %d, want 0", got)
	}
}

func TestToWireExpiryRelativeBelowThreshold(t *testing.T) {
	if got := toWireExpiry(60 * time.Second); got != 60 {
		t.Errorf("toWireExpiry(60s) = %d, want 60", got)
	}
}

func TestToWireExpiryAboveThresholdBecomesAbsolute(t *testing.T) {
	got := toWireExpiry(31 * 24 * time.Hour)
	now := uint32(time.Now().Unix())
	if got < now {
		t.Errorf("toWireExpiry(31 days) = %d, want an absolute timestamp >= %d", got, now)
	}
}

func TestBeUint64AndBeUint32(t *testing.T) {
	b := []byte{0, 0, 0, 0, 0, 0, 0, 42}
	if got := beUint64(b); got != 42 {
		t.Errorf("beUint64 = %d, want 42", got)
	}
	b32 := []byte{0, 0, 0, 7}
	if got := beUint32(b32); got != 7 {
		t.Errorf("beUint32 = %d, want 7", got)
	}
}

func TestEndpointStateForMapsSessionStates(t *testing.T) {
	cases := map[session.State]EndpointState{
		session.StateResolving:      EndpointResolving,
		session.StateConnecting:     EndpointConnecting,
		session.StateAuthenticating: EndpointAuthenticating,
		session.StateReady:          EndpointConnected,
		session.StateClosed:         EndpointDisconnected,
	}
	for in, want := range cases {
		if got := endpointStateFor(in); got != want {
			t.Errorf("endpointStateFor(%v) = %v, want %v", in, got, want)
		}
	}
}
