package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const DefaultEtcdPrefix = "/services"

// kvGetter is the subset of clientv3.KV used for lookups.
type kvGetter interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
}

// Etcd resolves services registered under {prefix}/{service}/{instance}.
// Values are either JSON {"host":..,"port":..} or a plain host:port string.
// Results follow etcd's ascending key order.
type Etcd struct {
	kv     kvGetter
	prefix string
	closer func() error
}

// EtcdConfig configures NewEtcd.
type EtcdConfig struct {
	// Context bounds the client's lifetime; cancelling it aborts dials and lookups.
	Context     context.Context
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
}

// NewEtcd dials etcd and returns a discovery backed by it.
func NewEtcd(cfg EtcdConfig) (*Etcd, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd discovery requires at least one endpoint")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Context:     cfg.Context,
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial etcd: %w", err)
	}

	d := NewEtcdFromKV(cli, cfg.Prefix)
	d.closer = cli.Close
	return d, nil
}

// NewEtcdFromKV wraps an existing etcd KV (e.g. *clientv3.Client).
func NewEtcdFromKV(kv kvGetter, prefix string) *Etcd {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Etcd{kv: kv, prefix: prefix}
}

// Lookup lists every instance stored under the service key prefix.
func (e *Etcd) Lookup(ctx context.Context, service string) ([]Endpoint, error) {
	service = strings.Trim(strings.TrimSpace(service), "/")
	if service == "" {
		return nil, fmt.Errorf("service name is empty")
	}

	key := e.prefix + "/" + service + "/"
	resp, err := e.kv.Get(ctx, key, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", key, err)
	}

	out := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ep, ok := decodeEndpoint(kv.Value)
		if !ok {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

// Close releases the etcd client when NewEtcd created it.
func (e *Etcd) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer()
}

func decodeEndpoint(raw []byte) (Endpoint, bool) {
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return Endpoint{}, false
	}

	if raw[0] == '{' {
		var ep Endpoint
		if err := json.Unmarshal(raw, &ep); err != nil || ep.Host == "" || ep.Port <= 0 {
			return Endpoint{}, false
		}
		return ep, true
	}

	host, portStr, err := net.SplitHostPort(string(raw))
	if err != nil || host == "" {
		return Endpoint{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return Endpoint{}, false
	}
	return Endpoint{Host: host, Port: port}, true
}
