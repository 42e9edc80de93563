// Package wechatproxy is a client for the WeChat-integration proxy backend.
package wechatproxy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mengyunzhi/wechat-proxy/pkg/httpclient"
)

const (
	// DefaultExpireSeconds is the temporary qr code lifetime used when nothing else is configured.
	DefaultExpireSeconds = 10 * 60
	DefaultTimeout       = 10 * time.Second

	OpTmpQrCode           = "getTmpQrCode"
	OpSendTemplateMessage = "sendTemplateMessage"

	pathTmpQrCode           = "/getTmpQrCode"
	pathSendTemplateMessage = "/sendTemplateMessage"
)

// Proxy is the surface exposed to applications.
type Proxy interface {
	FetchTemporaryQrCode(ctx context.Context, scene string, opts ...QrCodeOption) (string, error)
	SendTemplateMessage(ctx context.Context, req TemplateMessageRequest) (string, error)
}

var _ Proxy = (*Client)(nil)

// Client talks to the proxy backend located by a Resolver. It keeps no
// per-call state and is safe for concurrent use when its transport and
// discovery are.
type Client struct {
	resolver     Resolver
	http         httpclient.Client
	log          Logger
	timeout      time.Duration
	instanceName string
	appID        string

	callbackHost         string
	defaultCallbackPath  string
	defaultExpireSeconds int
}

// Option customizes a Client.
type Option func(c *Client)

// WithHTTPClient replaces the default resty transport.
func WithHTTPClient(h httpclient.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithTimeout sets the timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(log Logger) Option {
	return func(c *Client) {
		c.log = ensureLogger(log)
	}
}

// WithCallbackHost sets the host that qualifies callback paths into callbackUrl.
func WithCallbackHost(host string) Option {
	return func(c *Client) {
		c.callbackHost = strings.TrimRight(strings.TrimSpace(host), "/")
	}
}

func WithDefaultCallbackPath(path string) Option {
	return func(c *Client) {
		c.defaultCallbackPath = strings.TrimSpace(path)
	}
}

// WithDefaultExpireSeconds overrides DefaultExpireSeconds; non-positive values are ignored.
func WithDefaultExpireSeconds(seconds int) Option {
	return func(c *Client) {
		if seconds > 0 {
			c.defaultExpireSeconds = seconds
		}
	}
}

// New builds a Client for the backend located by resolver.
func New(resolver Resolver, instanceName, appID string, opts ...Option) (*Client, error) {
	if resolver == nil {
		return nil, errors.New("wechatproxy: resolver is nil")
	}

	c := &Client{
		resolver:             resolver,
		log:                  noopLogger{},
		timeout:              DefaultTimeout,
		instanceName:         instanceName,
		appID:                appID,
		defaultExpireSeconds: DefaultExpireSeconds,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(c.timeout)
	}
	return c, nil
}

// endpoint resolves the base URL and appends path.
func (c *Client) endpoint(ctx context.Context, path string) (string, error) {
	base, err := c.resolver.BaseURL(ctx)
	if err != nil {
		return "", err
	}
	return joinPath(base, path), nil
}

// transportFailure logs err and wraps it as a TransportError.
func (c *Client) transportFailure(op, url string, err error) error {
	tErr := &TransportError{Op: op, URL: url, Err: err}
	c.log.ErrorObj("wechat proxy request failed", "proxy_request_error", map[string]any{
		"op":    op,
		"url":   url,
		"error": err.Error(),
	})
	return tErr
}

func httpFailure(status int, body []byte) error {
	return &HTTPError{StatusCode: status, Body: string(body)}
}
