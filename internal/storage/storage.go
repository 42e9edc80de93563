package storage

import (
	"fmt"
	"strings"
	"time"
)

// Package storage provides local DB/cache abstraction.

// Store de-duplicates scan landing events.
type Store interface {
	Close() error
	// Claim records key and reports true when it was not already held.
	Claim(key string) (bool, error)
	// Release forgets key so a later delivery can claim it again.
	Release(key string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	LandingTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultLandingTTL      = 10 * time.Minute
	defaultCleanupInterval = time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// LandingKey builds the de-duplication key of a landing event.
func LandingKey(appID, openID, scene string) string {
	return appID + "|" + openID + "|" + scene
}

func normalizeOptions(opts Options) Options {
	if opts.LandingTTL <= 0 {
		opts.LandingTTL = defaultLandingTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// noopStore never remembers anything, so every delivery is claimed.
type noopStore struct{}

func (noopStore) Close() error               { return nil }
func (noopStore) Claim(string) (bool, error) { return true, nil }
func (noopStore) Release(string) error       { return nil }
