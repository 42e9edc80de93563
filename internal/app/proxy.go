package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mengyunzhi/wechat-proxy/internal/config"
	"github.com/mengyunzhi/wechat-proxy/internal/logger"
	"github.com/mengyunzhi/wechat-proxy/pkg/discovery"
	"github.com/mengyunzhi/wechat-proxy/pkg/wechatproxy"
)

// ProxyClient is the instrumented proxy client plus the resources behind its resolver.
type ProxyClient struct {
	wechatproxy.Proxy
	closers []func() error
}

// Close releases the discovery backend, if any.
func (p *ProxyClient) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewProxyClient builds a wechat proxy client from cfg. The resolver follows
// cfg.ProxyMode; discovery mode reads either the static services file or etcd.
func NewProxyClient(ctx context.Context, cfg *config.Config, log logger.Logger, reg prometheus.Registerer) (*ProxyClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if err := cfg.RequireAppID(); err != nil {
		return nil, err
	}

	pc := &ProxyClient{}
	resolver, err := buildResolver(ctx, cfg, log, pc)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	client, err := wechatproxy.New(resolver, cfg.InstanceName, cfg.AppID,
		wechatproxy.WithTimeout(cfg.RequestTimeout),
		wechatproxy.WithLogger(log),
		wechatproxy.WithCallbackHost(cfg.CallbackHost),
		wechatproxy.WithDefaultCallbackPath(cfg.CallbackPath),
		wechatproxy.WithDefaultExpireSeconds(cfg.QrCodeExpireSeconds),
	)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("build proxy client: %w", err)
	}

	instrumented, err := wechatproxy.NewInstrumented(client, reg)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("register proxy metrics: %w", err)
	}
	pc.Proxy = instrumented
	return pc, nil
}

func buildResolver(ctx context.Context, cfg *config.Config, log logger.Logger, pc *ProxyClient) (wechatproxy.Resolver, error) {
	var (
		resolver wechatproxy.Resolver
		err      error
	)
	switch cfg.ProxyMode {
	case config.ModeURL:
		log.InfoObj("proxy resolver configured", "proxy_resolver", map[string]any{
			"mode": cfg.ProxyMode,
			"url":  cfg.ProxyURL,
		})
		resolver, err = wechatproxy.NewURLResolver(cfg.ProxyURL)
	case config.ModeHost:
		log.InfoObj("proxy resolver configured", "proxy_resolver", map[string]any{
			"mode":      cfg.ProxyMode,
			"host":      cfg.ProxyHost,
			"port":      cfg.ProxyPort,
			"base_path": cfg.ProxyBasePath,
		})
		resolver, err = wechatproxy.NewHostResolver(cfg.ProxyHost, cfg.ProxyPort, cfg.ProxyBasePath)
	case config.ModeDiscovery:
		d, derr := buildDiscovery(ctx, cfg, pc)
		if derr != nil {
			return nil, derr
		}
		log.InfoObj("proxy resolver configured", "proxy_resolver", map[string]any{
			"mode":      cfg.ProxyMode,
			"discovery": cfg.DiscoveryType,
			"service":   cfg.ProxyServiceName,
			"base_path": cfg.ProxyBasePath,
		})
		resolver, err = wechatproxy.NewDiscoveryResolver(d, cfg.ProxyServiceName, cfg.ProxyBasePath)
	default:
		return nil, fmt.Errorf("unsupported proxy_mode %q", cfg.ProxyMode)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s resolver: %w", cfg.ProxyMode, err)
	}
	return resolver, nil
}

func buildDiscovery(ctx context.Context, cfg *config.Config, pc *ProxyClient) (discovery.Discovery, error) {
	switch cfg.DiscoveryType {
	case config.DiscoveryStatic:
		d, err := discovery.LoadStatic(cfg.DiscoveryFile)
		if err != nil {
			return nil, fmt.Errorf("load services file: %w", err)
		}
		return d, nil
	case config.DiscoveryEtcd:
		d, err := discovery.NewEtcd(discovery.EtcdConfig{
			Context:     ctx,
			Endpoints:   cfg.EtcdEndpoints,
			Prefix:      cfg.EtcdPrefix,
			DialTimeout: cfg.EtcdDialTimeout,
		})
		if err != nil {
			return nil, err
		}
		pc.closers = append(pc.closers, d.Close)
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported discovery_type %q", cfg.DiscoveryType)
	}
}
