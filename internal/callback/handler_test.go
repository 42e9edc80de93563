package callback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mengyunzhi/wechat-proxy/pkg/publishers"
	"github.com/mengyunzhi/wechat-proxy/pkg/wechatproxy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishers.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	if p.err != nil {
		return 0, p.err
	}
	return 1, nil
}

type memStore struct {
	mu       sync.Mutex
	keys     map[string]bool
	released []string
	err      error
}

func newMemStore() *memStore { return &memStore{keys: map[string]bool{}} }

func (m *memStore) Close() error { return nil }

func (m *memStore) Claim(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memStore) Release(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

func newTestHandler(t *testing.T, store *memStore, pub Publisher) (*Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	h, err := NewHandler(Config{LandingPath: "wechat/landing", Reply: "ok-reply"}, store, pub, nil, reg)
	require.NoError(t, err)
	return h, reg
}

func postLanding(t *testing.T, engine *gin.Engine, body string) (*httptest.ResponseRecorder, wechatproxy.TextResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/wechat/landing", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp wechatproxy.TextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestLandingForwardsOnce(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	h, _ := newTestHandler(t, store, pub)
	engine := h.Engine()

	body := `{"scene":"login-1","openid":"o-1","appId":"wx-app"}`
	w, resp := postLanding(t, engine, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, wechatproxy.NewTextResponse("ok-reply"), resp)

	w, resp = postLanding(t, engine, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok-reply", resp.Content)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "wx-app", pub.events[0].AppID)
	assert.Equal(t, "login-1", pub.events[0].Scene)
	assert.Equal(t, "o-1", pub.events[0].OpenID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.landings.WithLabelValues(ResultForwarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.landings.WithLabelValues(ResultDuplicate)))
}

func TestLandingRejectsIncompletePayload(t *testing.T) {
	pub := &recordingPublisher{}
	h, _ := newTestHandler(t, newMemStore(), pub)
	engine := h.Engine()

	for _, body := range []string{`{"scene":"s"}`, `{"openid":"o"}`, `{"scene":"  ","openid":"o"}`, `not-json`} {
		w, resp := postLanding(t, engine, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "text", resp.Type)
	}
	assert.Empty(t, pub.events)
	assert.Equal(t, 4.0, testutil.ToFloat64(h.landings.WithLabelValues(ResultInvalid)))
}

func TestLandingPublishFailureReleasesKey(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{err: errors.New("sink down")}
	h, _ := newTestHandler(t, store, pub)
	engine := h.Engine()

	body := `{"scene":"s","openid":"o","appId":"a"}`
	w, _ := postLanding(t, engine, body)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, []string{"a|o|s"}, store.released)

	pub.err = nil
	w, _ = postLanding(t, engine, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, pub.events, 2)
}

func TestLandingStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk full")
	pub := &recordingPublisher{}
	h, _ := newTestHandler(t, store, pub)

	w, _ := postLanding(t, h.Engine(), `{"scene":"s","openid":"o"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, pub.events)
}

func TestLandingWithoutPublisher(t *testing.T) {
	h, err := NewHandler(Config{LandingPath: "/land", Reply: "hi"}, nil, nil, nil, prometheus.NewRegistry())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/land", strings.NewReader(`{"scene":"s","openid":"o"}`))
	w := httptest.NewRecorder()
	h.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"text","content":"hi"}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestHandler(t, newMemStore(), nil)
	engine := h.Engine()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	postLanding(t, engine, `{"scene":"s","openid":"o"}`)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `wechat_landing_events_total{result="forwarded"} 1`)
}

func TestNewHandlerReusesRegisteredCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	h1, err := NewHandler(Config{LandingPath: "/l"}, nil, nil, nil, reg)
	require.NoError(t, err)
	h2, err := NewHandler(Config{LandingPath: "/l"}, nil, nil, nil, reg)
	require.NoError(t, err)
	assert.Same(t, h1.landings, h2.landings)
}
