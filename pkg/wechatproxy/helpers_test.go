package wechatproxy

import (
	"context"
	"sync"

	"github.com/mengyunzhi/wechat-proxy/pkg/httpclient"
)

type fakeResponse struct {
	status int
	body   string
}

func (r fakeResponse) Body() []byte    { return []byte(r.body) }
func (r fakeResponse) StatusCode() int { return r.status }

type fakeTransport struct {
	mu     sync.Mutex
	urls   []string
	bodies []any
	resp   fakeResponse
	err    error
}

func (f *fakeTransport) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	return f.record(url, nil)
}

func (f *fakeTransport) Post(_ context.Context, url string, _ map[string]string, body any) (httpclient.Response, error) {
	return f.record(url, body)
}

func (f *fakeTransport) record(url string, body any) (httpclient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type logEntry struct {
	level string
	msg   string
	obj   interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *recordingLogger) add(level, msg string, obj interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, logEntry{level: level, msg: msg, obj: obj})
}

func (r *recordingLogger) InfoObj(msg, _ string, obj interface{})  { r.add("info", msg, obj) }
func (r *recordingLogger) DebugObj(msg, _ string, obj interface{}) { r.add("debug", msg, obj) }
func (r *recordingLogger) WarnObj(msg, _ string, obj interface{})  { r.add("warn", msg, obj) }
func (r *recordingLogger) ErrorObj(msg, _ string, obj interface{}) { r.add("error", msg, obj) }

func (r *recordingLogger) count(level string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.level == level {
			n++
		}
	}
	return n
}
