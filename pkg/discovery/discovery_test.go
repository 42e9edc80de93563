package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStaticKeepsEndpointOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	raw := `
services:
  - name: wechat-proxy
    endpoints:
      - host: 10.0.0.2
        port: 8081
      - host: 10.0.0.1
        port: 8082
  - name: empty
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	d, err := LoadStatic(path)
	require.NoError(t, err)

	eps, err := d.Lookup(context.Background(), "wechat-proxy")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{{Host: "10.0.0.2", Port: 8081}, {Host: "10.0.0.1", Port: 8082}}, eps)

	eps, err = d.Lookup(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, eps)

	eps, err = d.Lookup(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, eps)
}

func TestLoadStaticJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.json")
	raw := `{"services":[{"name":"svc","endpoints":[{"host":"h","port":1}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	d, err := LoadStatic(path)
	require.NoError(t, err)
	eps, err := d.Lookup(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, "h:1", eps[0].Address())
}

func TestLoadStaticRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	raw := `
services:
  - name: a
  - name: a
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := LoadStatic(path)
	assert.Error(t, err)
}

func TestStaticLookupReturnsCopy(t *testing.T) {
	d := NewStatic(map[string][]Endpoint{"svc": {{Host: "a", Port: 1}}})
	eps, _ := d.Lookup(context.Background(), "svc")
	eps[0].Host = "mutated"

	again, _ := d.Lookup(context.Background(), "svc")
	assert.Equal(t, "a", again[0].Host)
}

func TestStaticRegisterSkipsInvalid(t *testing.T) {
	d := NewStatic(nil)
	d.Register("svc", Endpoint{Host: "", Port: 1}, Endpoint{Host: "b", Port: 0}, Endpoint{Host: "c", Port: 3})

	eps, err := d.Lookup(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{{Host: "c", Port: 3}}, eps)
}
