package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Proxy resolution modes.
const (
	ModeURL       = "url"
	ModeHost      = "host"
	ModeDiscovery = "discovery"
)

// Discovery backends.
const (
	DiscoveryStatic = "static"
	DiscoveryEtcd   = "etcd"
)

// ConfigFileEnv names the optional YAML/JSON/TOML config file.
const ConfigFileEnv = "WXPROXY_CONFIG"

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	ProxyMode        string `mapstructure:"proxy_mode"`
	ProxyURL         string `mapstructure:"proxy_url"`
	ProxyHost        string `mapstructure:"proxy_host"`
	ProxyPort        int    `mapstructure:"proxy_port"`
	ProxyBasePath    string `mapstructure:"proxy_base_path"`
	ProxyServiceName string `mapstructure:"proxy_service_name"`

	InstanceName          string        `mapstructure:"instance_name"`
	AppID                 string        `mapstructure:"app_id"`
	CallbackHost          string        `mapstructure:"callback_host"`
	CallbackPath          string        `mapstructure:"callback_path"`
	QrCodeExpireSeconds   int           `mapstructure:"qrcode_expire_seconds"`
	RequestTimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	RequestTimeout        time.Duration `mapstructure:"-"`

	DiscoveryType          string        `mapstructure:"discovery_type"`
	DiscoveryFile          string        `mapstructure:"discovery_file"`
	EtcdEndpoints          []string      `mapstructure:"etcd_endpoints"`
	EtcdPrefix             string        `mapstructure:"etcd_prefix"`
	EtcdDialTimeoutSeconds int64         `mapstructure:"etcd_dial_timeout_seconds"`
	EtcdDialTimeout        time.Duration `mapstructure:"-"`

	ListenAddr             string        `mapstructure:"listen_addr"`
	LandingPath            string        `mapstructure:"landing_path"`
	LandingReply           string        `mapstructure:"landing_reply"`
	PublishersFile         string        `mapstructure:"publishers_file"`
	ShutdownTimeoutSeconds int64         `mapstructure:"shutdown_timeout_seconds"`
	ShutdownTimeout        time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables, configs/.env and the
// optional file named by WXPROXY_CONFIG.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return load(os.Getenv(ConfigFileEnv))
}

func load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file = strings.TrimSpace(file); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "wechat-proxy")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("proxy_mode", ModeURL)
	v.SetDefault("proxy_url", "http://localhost:8081/request")
	v.SetDefault("proxy_host", "localhost")
	v.SetDefault("proxy_port", 8081)
	v.SetDefault("proxy_base_path", "/request")
	v.SetDefault("proxy_service_name", "wechat-proxy")

	v.SetDefault("instance_name", "wechat-proxy")
	v.SetDefault("app_id", "")
	v.SetDefault("callback_host", "http://localhost:8080/wechat")
	v.SetDefault("callback_path", "")
	v.SetDefault("qrcode_expire_seconds", 600)
	v.SetDefault("request_timeout_seconds", 10)

	v.SetDefault("discovery_type", DiscoveryStatic)
	v.SetDefault("discovery_file", "./configs/services.yaml")
	v.SetDefault("etcd_endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("etcd_prefix", "/services")
	v.SetDefault("etcd_dial_timeout_seconds", 3)

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("landing_path", "/wechat/landing")
	v.SetDefault("landing_reply", "扫码成功")
	v.SetDefault("publishers_file", "")
	v.SetDefault("shutdown_timeout_seconds", 10)

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/landing.db")
	v.SetDefault("storage_ttl_seconds", 600)
	v.SetDefault("storage_cleanup_interval_seconds", int64(time.Hour/time.Second))
}

func (cfg *Config) normalize() error {
	cfg.ProxyMode = strings.ToLower(strings.TrimSpace(cfg.ProxyMode))
	cfg.DiscoveryType = strings.ToLower(strings.TrimSpace(cfg.DiscoveryType))
	cfg.AppID = strings.TrimSpace(cfg.AppID)

	switch cfg.ProxyMode {
	case ModeURL:
		if strings.TrimSpace(cfg.ProxyURL) == "" {
			return fmt.Errorf("proxy_url is required in %s mode", ModeURL)
		}
	case ModeHost:
		if strings.TrimSpace(cfg.ProxyHost) == "" {
			return fmt.Errorf("proxy_host is required in %s mode", ModeHost)
		}
		if cfg.ProxyPort <= 0 || cfg.ProxyPort > 65535 {
			return fmt.Errorf("invalid proxy_port %d", cfg.ProxyPort)
		}
	case ModeDiscovery:
		if strings.TrimSpace(cfg.ProxyServiceName) == "" {
			return fmt.Errorf("proxy_service_name is required in %s mode", ModeDiscovery)
		}
		if cfg.DiscoveryType != DiscoveryStatic && cfg.DiscoveryType != DiscoveryEtcd {
			return fmt.Errorf("unsupported discovery_type %q", cfg.DiscoveryType)
		}
	default:
		return fmt.Errorf("unsupported proxy_mode %q", cfg.ProxyMode)
	}

	if cfg.QrCodeExpireSeconds <= 0 {
		return fmt.Errorf("invalid qrcode_expire_seconds (must be positive seconds)")
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid request_timeout_seconds (must be positive seconds)")
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	if cfg.EtcdDialTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid etcd_dial_timeout_seconds (must be positive seconds)")
	}
	cfg.EtcdDialTimeout = time.Duration(cfg.EtcdDialTimeoutSeconds) * time.Second

	if cfg.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid shutdown_timeout_seconds (must be positive seconds)")
	}
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second

	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return nil
}

// RequireAppID reports an error when no WeChat app id is configured.
func (cfg *Config) RequireAppID() error {
	if cfg == nil || cfg.AppID == "" {
		return fmt.Errorf("app_id is required")
	}
	return nil
}
