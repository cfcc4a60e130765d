package gocbcorex

import "testing"

func TestCfgValidateRequiresSeedAddresses(t *testing.T) {
	c := defaultCfg()
	c.bucket = "default"
	if err := c.validate(); err == nil {
		t.Fatal("expected an error with no seed addresses")
	}
}

func TestCfgValidateRequiresBucket(t *testing.T) {
	c := defaultCfg()
	c.addresses = []string{"127.0.0.1:11210"}
	if err := c.validate(); err == nil {
		t.Fatal("expected an error with no bucket")
	}
}

func TestCfgValidateAccepts(t *testing.T) {
	c := defaultCfg()
	c.addresses = []string{"127.0.0.1:11210"}
	c.bucket = "default"
	if err := c.validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}
}

func TestOptsApplyInOrder(t *testing.T) {
	c := defaultCfg()
	for _, o := range []Opt{SeedAddresses("a:1", "b:2"), Bucket("travel-sample"), Credentials("u", "p")} {
		o.apply(&c)
	}
	if len(c.addresses) != 2 || c.addresses[0] != "a:1" {
		t.Errorf("addresses = %v", c.addresses)
	}
	if c.bucket != "travel-sample" {
		t.Errorf("bucket = %q", c.bucket)
	}
	if c.username != "u" || c.password != "p" {
		t.Errorf("credentials = %q/%q", c.username, c.password)
	}
}
