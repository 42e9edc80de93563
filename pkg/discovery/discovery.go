// Package discovery resolves logical service names to host/port endpoints.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Supported discovery backends.
const (
	TypeStatic = "static"
	TypeEtcd   = "etcd"
)

// Endpoint is a single registered instance of a service.
type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Discovery looks up the endpoints registered under a service name.
// An empty result with a nil error means the service has no instances.
type Discovery interface {
	Lookup(ctx context.Context, service string) ([]Endpoint, error)
}

// servicesFile represents the structure of the services file.
type servicesFile struct {
	Services []ServiceConfig `json:"services" yaml:"services"`
}

// ServiceConfig is one service entry declared in the services file.
type ServiceConfig struct {
	Name      string     `json:"name" yaml:"name"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// Static serves lookups from an in-memory table.
type Static struct {
	mu       sync.RWMutex
	services map[string][]Endpoint
}

// NewStatic builds a Static discovery from the given table. Endpoint order is kept.
func NewStatic(services map[string][]Endpoint) *Static {
	s := &Static{services: make(map[string][]Endpoint, len(services))}
	for name, eps := range services {
		s.Register(name, eps...)
	}
	return s
}

// Register appends endpoints to a service.
func (s *Static) Register(service string, eps ...Endpoint) {
	service = strings.TrimSpace(service)
	if service == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range eps {
		ep.Host = strings.TrimSpace(ep.Host)
		if ep.Host == "" || ep.Port <= 0 {
			continue
		}
		s.services[service] = append(s.services[service], ep)
	}
}

// Lookup returns a copy of the endpoints registered for service.
func (s *Static) Lookup(_ context.Context, service string) ([]Endpoint, error) {
	if s == nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := s.services[strings.TrimSpace(service)]
	if len(eps) == 0 {
		return nil, nil
	}
	out := make([]Endpoint, len(eps))
	copy(out, eps)
	return out, nil
}

// LoadStatic loads a Static discovery from a YAML/JSON services file.
func LoadStatic(path string) (*Static, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("services file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open services file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}

	parsed, err := parseServicesFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Services) == 0 {
		return nil, errors.New("services file contains no services entries")
	}

	table := make(map[string][]Endpoint, len(parsed.Services))
	for i, svc := range parsed.Services {
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			return nil, fmt.Errorf("services[%d]: name is required", i)
		}
		if _, exists := table[name]; exists {
			return nil, fmt.Errorf("duplicate service name %q", name)
		}
		table[name] = svc.Endpoints
	}
	return NewStatic(table), nil
}

func parseServicesFile(data []byte, ext string) (servicesFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var out servicesFile
		if err := d.fn(data, &out); err == nil {
			return out, nil
		}
	}

	return servicesFile{}, errors.New("services file format not recognized (expected YAML or JSON)")
}
