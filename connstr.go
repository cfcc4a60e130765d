package gocbcorex

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ParseConnectionString turns a couchbase:// / couchbases:// connection
// string into the same Opt set a caller could have passed by hand (§6
// "connection string grammar"). The standard library's net/url is used
// deliberately here: no ecosystem URL parser in the retrieved pack
// improves on it for this grammar (SPEC_FULL.md "AMBIENT STACK").
//
// Grammar: couchbase[s]://host1,host2:port,...][/bucket][?opt=val&...]
// Recognized query options: connect_timeout (duration string, e.g.
// "10s"), poll_interval (duration string), kv_durable_timeout (duration
// string, §6).
func ParseConnectionString(connstr string) ([]Opt, error) {
	u, err := url.Parse(connstr)
	if err != nil {
		return nil, fmt.Errorf("gocbcorex: parsing connection string: %w", err)
	}

	var useTLS bool
	switch u.Scheme {
	case "couchbase":
		useTLS = false
	case "couchbases":
		useTLS = true
	default:
		return nil, fmt.Errorf("gocbcorex: unsupported connection string scheme %q", u.Scheme)
	}

	hostport := u.Host

	defaultPort := "11210"
	if useTLS {
		defaultPort = "11207"
	}

	var addrs []string
	for _, host := range strings.Split(hostport, ",") {
		if host == "" {
			continue
		}
		if !strings.Contains(host, ":") {
			host = host + ":" + defaultPort
		}
		addrs = append(addrs, host)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("gocbcorex: connection string has no host")
	}

	opts := []Opt{SeedAddresses(addrs...)}

	if bucket := strings.Trim(u.Path, "/"); bucket != "" {
		opts = append(opts, Bucket(bucket))
	}

	if useTLS {
		opts = append(opts, WithTLSConfig(&tls.Config{}))
	}

	q := u.Query()
	if v := q.Get("connect_timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("gocbcorex: invalid connect_timeout %q: %w", v, err)
		}
		opts = append(opts, WithConnectTimeout(d))
	}
	if v := q.Get("poll_interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("gocbcorex: invalid poll_interval %q: %w", v, err)
		}
		opts = append(opts, WithPollInterval(d))
	}
	if v := q.Get("kv_durable_timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("gocbcorex: invalid kv_durable_timeout %q: %w", v, err)
		}
		opts = append(opts, WithDurableTimeout(d))
	}

	return opts, nil
}

// splitHostPort is a small helper used by sessionPool.SessionForNode to
// turn a topology.Node's (hostname, port) pair back into a dial address.
func splitHostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
