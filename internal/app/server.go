package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mengyunzhi/wechat-proxy/internal/callback"
	"github.com/mengyunzhi/wechat-proxy/internal/config"
	"github.com/mengyunzhi/wechat-proxy/internal/logger"
	"github.com/mengyunzhi/wechat-proxy/internal/storage"
	"github.com/mengyunzhi/wechat-proxy/pkg/publishers"
)

// Server is the landing callback runtime. It owns the landing store, the
// publishers fanout and the HTTP server in front of the callback handler.
type Server struct {
	cfg    *config.Config
	log    logger.Logger
	store  storage.Store
	fanout *publishers.Fanout
	srv    *http.Server
}

// NewServer builds the landing runtime from cfg. reg receives the landing and
// runtime metrics; nil means a fresh registry.
func NewServer(ctx context.Context, cfg *config.Config, log logger.Logger, reg *prometheus.Registry) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		LandingTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"landing_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	handler, err := callback.NewHandler(callback.Config{
		LandingPath: cfg.LandingPath,
		Reply:       cfg.LandingReply,
	}, store, fanout, log, reg)
	if err != nil {
		_ = store.Close()
		_ = fanout.Close()
		return nil, fmt.Errorf("build callback handler: %w", err)
	}

	return &Server{
		cfg:    cfg,
		log:    log,
		store:  store,
		fanout: fanout,
		srv: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: handler.Engine(),
		},
	}, nil
}

// buildFanout loads the publishers file. An empty path disables forwarding.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		log.WarnObj("no publishers file configured; landings are not forwarded", "publishers_file", path)
		return publishers.NewFanout(nil), nil
	}

	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, p := range enabled {
		summaries = append(summaries, map[string]string{"id": p.ID, "type": p.Type})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs), nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		s.close()
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.close()

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("landing server listening", "listen_addr", ln.Addr().String())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.InfoObj("shutdown signal received", "shutdown_timeout", s.cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.ErrorObj("forced shutdown", "error", err.Error())
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.InfoObj("landing server stopped", "listen_addr", ln.Addr().String())
	return nil
}

func (s *Server) close() {
	if err := s.fanout.Close(); err != nil {
		s.log.WarnObj("failed to close publishers", "error", err.Error())
	}
	if err := s.store.Close(); err != nil {
		s.log.WarnObj("failed to close storage", "error", err.Error())
	}
}
