package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mengyunzhi/wechat-proxy/internal/config"
	"github.com/mengyunzhi/wechat-proxy/pkg/wechatproxy"
)

type capturedRequest struct {
	path  string
	query url.Values
}

func newBackend(t *testing.T) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.Query()
		_, _ = w.Write([]byte(`{"url":"https://mp.weixin.qq.com/q"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func baseConfig() *config.Config {
	return &config.Config{
		InstanceName:        "inst",
		AppID:               "wx-app",
		CallbackHost:        "http://cb.example.com/",
		CallbackPath:        "/landing",
		QrCodeExpireSeconds: 120,
		RequestTimeout:      2 * time.Second,
		ProxyBasePath:       "/request",
		ProxyServiceName:    "wechat-proxy",
	}
}

func TestNewProxyClientURLMode(t *testing.T) {
	srv, got := newBackend(t)
	cfg := baseConfig()
	cfg.ProxyMode = config.ModeURL
	cfg.ProxyURL = srv.URL + "/request/"

	reg := prometheus.NewRegistry()
	pc, err := NewProxyClient(context.Background(), cfg, nil, reg)
	require.NoError(t, err)
	defer pc.Close()

	body, err := pc.FetchTemporaryQrCode(context.Background(), "login-1")
	require.NoError(t, err)
	assert.Equal(t, `{"url":"https://mp.weixin.qq.com/q"}`, body)

	assert.Equal(t, "/request/getTmpQrCode", got.path)
	assert.Equal(t, "inst", got.query.Get("instance"))
	assert.Equal(t, "wx-app", got.query.Get("appId"))
	assert.Equal(t, "http://cb.example.com/landing", got.query.Get("callbackUrl"))
	assert.Equal(t, "120", got.query.Get("expireSeconds"))

	count, err := testutil.GatherAndCount(reg, "wechat_proxy_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewProxyClientHostMode(t *testing.T) {
	srv, got := newBackend(t)
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.ProxyMode = config.ModeHost
	cfg.ProxyHost = host
	cfg.ProxyPort = port

	pc, err := NewProxyClient(context.Background(), cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.SendTemplateMessage(context.Background(), wechatproxy.TemplateMessageRequest{OpenID: "o", TemplateID: "t"})
	require.NoError(t, err)
	assert.Equal(t, "/request/sendTemplateMessage", got.path)
}

func TestNewProxyClientStaticDiscovery(t *testing.T) {
	srv, got := newBackend(t)
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "services.yaml")
	raw := "services:\n  - name: wechat-proxy\n    endpoints:\n      - host: " + host + "\n        port: " + port + "\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg := baseConfig()
	cfg.ProxyMode = config.ModeDiscovery
	cfg.DiscoveryType = config.DiscoveryStatic
	cfg.DiscoveryFile = path

	pc, err := NewProxyClient(context.Background(), cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.FetchTemporaryQrCode(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "/request/getTmpQrCode", got.path)

	cfg.ProxyServiceName = "missing"
	pc2, err := NewProxyClient(context.Background(), cfg, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	_, err = pc2.FetchTemporaryQrCode(context.Background(), "s")
	assert.ErrorIs(t, err, wechatproxy.ErrServiceUnavailable)
}

func TestNewProxyClientErrors(t *testing.T) {
	cfg := baseConfig()
	cfg.AppID = ""
	cfg.ProxyMode = config.ModeURL
	cfg.ProxyURL = "http://x"
	_, err := NewProxyClient(context.Background(), cfg, nil, prometheus.NewRegistry())
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.ProxyMode = "carrier-pigeon"
	_, err = NewProxyClient(context.Background(), cfg, nil, prometheus.NewRegistry())
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.ProxyMode = config.ModeDiscovery
	cfg.DiscoveryType = config.DiscoveryStatic
	cfg.DiscoveryFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = NewProxyClient(context.Background(), cfg, nil, prometheus.NewRegistry())
	assert.Error(t, err)

	_, err = NewProxyClient(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestNewProxyClientEtcdHonoursContext(t *testing.T) {
	cfg := baseConfig()
	cfg.ProxyMode = config.ModeDiscovery
	cfg.DiscoveryType = config.DiscoveryEtcd
	cfg.EtcdEndpoints = []string{"127.0.0.1:1"}
	cfg.EtcdDialTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pc, err := NewProxyClient(ctx, cfg, nil, prometheus.NewRegistry())
	if err != nil {
		return
	}
	defer pc.Close()

	lookupCtx, lookupCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer lookupCancel()
	_, err = pc.FetchTemporaryQrCode(lookupCtx, "s")
	require.Error(t, err)
	assert.NotErrorIs(t, err, wechatproxy.ErrServiceUnavailable)
}
