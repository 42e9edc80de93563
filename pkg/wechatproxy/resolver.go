package wechatproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mengyunzhi/wechat-proxy/pkg/discovery"
)

// Resolver produces the base URL of the proxy backend, without a trailing slash.
type Resolver interface {
	BaseURL(ctx context.Context) (string, error)
}

// URLResolver always returns a fixed base URL.
type URLResolver struct {
	baseURL string
}

// NewURLResolver normalizes raw and returns a resolver for it.
func NewURLResolver(raw string) (*URLResolver, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("wechatproxy: base url is empty")
	}
	return &URLResolver{baseURL: NormalizeBaseURL(raw)}, nil
}

func (r *URLResolver) BaseURL(context.Context) (string, error) {
	return r.baseURL, nil
}

// HostResolver builds http://{host}:{port}{basePath}.
type HostResolver struct {
	baseURL string
}

// NewHostResolver validates host and port and returns a resolver for them.
func NewHostResolver(host string, port int, basePath string) (*HostResolver, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("wechatproxy: host is empty")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("wechatproxy: invalid port %d", port)
	}
	return &HostResolver{baseURL: hostURL(host, port, normalizeBasePath(basePath))}, nil
}

func (r *HostResolver) BaseURL(context.Context) (string, error) {
	return r.baseURL, nil
}

// DiscoveryResolver looks the service up on every call and uses the first endpoint returned.
type DiscoveryResolver struct {
	discovery discovery.Discovery
	service   string
	basePath  string
}

// NewDiscoveryResolver returns a resolver backed by d.
func NewDiscoveryResolver(d discovery.Discovery, service, basePath string) (*DiscoveryResolver, error) {
	if d == nil {
		return nil, errors.New("wechatproxy: discovery is nil")
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, errors.New("wechatproxy: service name is empty")
	}
	return &DiscoveryResolver{
		discovery: d,
		service:   service,
		basePath:  normalizeBasePath(basePath),
	}, nil
}

func (r *DiscoveryResolver) BaseURL(ctx context.Context) (string, error) {
	eps, err := r.discovery.Lookup(ctx, r.service)
	if err != nil {
		return "", fmt.Errorf("wechatproxy: lookup service %q: %w", r.service, err)
	}
	if len(eps) == 0 {
		return "", &ServiceUnavailableError{Service: r.service}
	}
	ep := eps[0]
	return hostURL(ep.Host, ep.Port, r.basePath), nil
}

// NormalizeBaseURL prepends http:// when raw has no http(s) scheme and strips trailing slashes.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func hostURL(host string, port int, basePath string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + basePath
}

func joinPath(base, suffix string) string {
	return base + "/" + strings.TrimLeft(suffix, "/")
}
