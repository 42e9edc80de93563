package wechatproxy

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type qrCodeParams struct {
	callbackPath  string
	expireSeconds int
}

// QrCodeOption overrides a client default for one FetchTemporaryQrCode call.
type QrCodeOption func(p *qrCodeParams)

// WithCallbackPath sets the path the backend calls back after a scan.
func WithCallbackPath(path string) QrCodeOption {
	return func(p *qrCodeParams) {
		p.callbackPath = path
	}
}

// WithExpireSeconds sets the qr code lifetime; non-positive values keep the default.
func WithExpireSeconds(seconds int) QrCodeOption {
	return func(p *qrCodeParams) {
		if seconds > 0 {
			p.expireSeconds = seconds
		}
	}
}

// FetchTemporaryQrCode asks the backend for a temporary qr code bound to scene
// and returns the response body, by convention the qr code image URL.
func (c *Client) FetchTemporaryQrCode(ctx context.Context, scene string, opts ...QrCodeOption) (string, error) {
	p := qrCodeParams{
		callbackPath:  c.defaultCallbackPath,
		expireSeconds: c.defaultExpireSeconds,
	}
	for _, opt := range opts {
		opt(&p)
	}

	endpoint, err := c.endpoint(ctx, pathTmpQrCode)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("scene", scene)
	query.Set("instance", c.instanceName)
	query.Set("appId", c.appID)
	query.Set("callbackUrl", c.callbackURL(p.callbackPath))
	query.Set("expireSeconds", strconv.Itoa(p.expireSeconds))
	fullURL := endpoint + "?" + query.Encode()

	c.log.DebugObj("requesting temporary qr code", "proxy_request", map[string]any{
		"op":  OpTmpQrCode,
		"url": fullURL,
	})

	resp, err := c.http.Get(ctx, fullURL, nil)
	if err != nil {
		return "", c.transportFailure(OpTmpQrCode, fullURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", httpFailure(resp.StatusCode(), resp.Body())
	}
	return string(resp.Body()), nil
}

// callbackURL qualifies path with the callback host.
func (c *Client) callbackURL(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.callbackHost + path
}
