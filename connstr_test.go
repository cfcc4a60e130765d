package gocbcorex

import "testing"

func TestParseConnectionStringBasic(t *testing.T) {
	opts, err := ParseConnectionString("couchbase://node1,node2/travel-sample")
	if err != nil {
		t.Fatalf("ParseConnectionString: %v", err)
	}
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if len(c.addresses) != 2 {
		t.Fatalf("addresses = %v, want 2 entries", c.addresses)
	}
	if c.addresses[0] != "node1:11210" {
		t.Errorf("addresses[0] = %q, want node1:11210", c.addresses[0])
	}
	if c.bucket != "travel-sample" {
		t.Errorf("bucket = %q, want travel-sample", c.bucket)
	}
	if c.tlsConfig != nil {
		t.Error("expected no TLS for couchbase:// scheme")
	}
}

func TestParseConnectionStringSecureDefaultPort(t *testing.T) {
	opts, err := ParseConnectionString("couchbases://node1/default")
	if err != nil {
		t.Fatalf("ParseConnectionString: %v", err)
	}
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if c.addresses[0] != "node1:11207" {
		t.Errorf("addresses[0] = %q, want node1:11207", c.addresses[0])
	}
	if c.tlsConfig == nil {
		t.Error("expected TLS to be enabled for couchbases:// scheme")
	}
}

func TestParseConnectionStringExplicitPortAndOptions(t *testing.T) {
	opts, err := ParseConnectionString("couchbase://node1:12345/default?connect_timeout=5s&poll_interval=1s")
	if err != nil {
		t.Fatalf("ParseConnectionString: %v", err)
	}
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if c.addresses[0] != "node1:12345" {
		t.Errorf("addresses[0] = %q, want node1:12345", c.addresses[0])
	}
	if c.connectTimeout.String() != "5s" {
		t.Errorf("connectTimeout = %v, want 5s", c.connectTimeout)
	}
	if c.pollInterval.String() != "1s" {
		t.Errorf("pollInterval = %v, want 1s", c.pollInterval)
	}
}

func TestParseConnectionStringRejectsUnknownScheme(t *testing.T) {
	if _, err := ParseConnectionString("http://node1/default"); err == nil {
		t.Fatal("expected an error for an unsupported scheme")
	}
}
