package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variable prefix for all sonar settings (SONAR_SERVER_ADDR, SONAR_SCANNER_RATE_LIMIT, ...)
const envPrefix = "SONAR"

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string
}

// ScannerConfig contains probe executor defaults and limits
type ScannerConfig struct {
	PortBatchSize    int
	DNSBatchSize     int
	MaxConcurrency   int
	DefaultPortRange string
	DefaultTimeout   time.Duration
	BannerWait       time.Duration
	BannerSize       int
	RateLimit        int // probes per second per scan, 0 = unlimited
}

// DNSConfig contains resolver settings
type DNSConfig struct {
	// Server is an explicit nameserver ("host" or "host:port"); empty = system resolver
	Server        string
	LookupTimeout time.Duration // hard ceiling per subdomain lookup
	QueryTimeout  time.Duration // per-exchange timeout for an explicit nameserver
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// Global configuration instances (initialized once at startup)
var (
	Server  = DefaultServerConfig()
	Scanner = DefaultScannerConfig()
	DNS     = DefaultDNSConfig()
	Log     = DefaultLogConfig()
)

// DefaultServerConfig returns default HTTP server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1:8080",
		ReadTimeout:     15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20, // 1MB
		CORSOrigins:     []string{"*"},
	}
}

// DefaultScannerConfig returns default scanner configuration
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		PortBatchSize:    50,
		DNSBatchSize:     50,
		MaxConcurrency:   500,
		DefaultPortRange: "1-1000",
		DefaultTimeout:   time.Second,
		BannerWait:       200 * time.Millisecond,
		BannerSize:       1024,
		RateLimit:        0,
	}
}

// DefaultDNSConfig returns default DNS configuration
func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		Server:        "",
		LookupTimeout: 10 * time.Second,
		QueryTimeout:  3 * time.Second,
	}
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Init initializes all configuration from defaults and environment variables
// Call this at application startup when no config file is used
func Init() error {
	return Load("")
}

// Load initializes all configuration from defaults, an optional YAML/JSON/TOML
// file and SONAR_* environment variables (highest precedence)
func Load(path string) error {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	Server = ServerConfig{
		Addr:            strings.TrimSpace(v.GetString("server.addr")),
		ReadTimeout:     v.GetDuration("server.read_timeout"),
		IdleTimeout:     v.GetDuration("server.idle_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		MaxBodyBytes:    v.GetInt64("server.max_body_bytes"),
		CORSOrigins:     splitList(v.GetStringSlice("server.cors_origins")),
	}
	Scanner = ScannerConfig{
		PortBatchSize:    v.GetInt("scanner.port_batch_size"),
		DNSBatchSize:     v.GetInt("scanner.dns_batch_size"),
		MaxConcurrency:   v.GetInt("scanner.max_concurrency"),
		DefaultPortRange: v.GetString("scanner.default_port_range"),
		DefaultTimeout:   v.GetDuration("scanner.default_timeout"),
		BannerWait:       v.GetDuration("scanner.banner_wait"),
		BannerSize:       v.GetInt("scanner.banner_size"),
		RateLimit:        v.GetInt("scanner.rate_limit"),
	}
	DNS = DNSConfig{
		Server:        v.GetString("dns.server"),
		LookupTimeout: v.GetDuration("dns.lookup_timeout"),
		QueryTimeout:  v.GetDuration("dns.query_timeout"),
	}
	Log = LogConfig{
		Level:  strings.ToLower(v.GetString("log.level")),
		Format: strings.ToLower(v.GetString("log.format")),
	}

	return Validate()
}

// Validate checks the loaded configuration for values the scanner cannot work with
func Validate() error {
	var errs []error
	if Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if Scanner.PortBatchSize <= 0 || Scanner.DNSBatchSize <= 0 {
		errs = append(errs, errors.New("scanner batch sizes must be positive"))
	}
	if Scanner.MaxConcurrency < 0 {
		errs = append(errs, errors.New("scanner.max_concurrency must not be negative"))
	}
	if Scanner.DefaultTimeout <= 0 || DNS.LookupTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive durations such as 1s or 500ms"))
	}
	switch Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", Log.Format))
	}
	return errors.Join(errs...)
}

// newViper builds a viper instance with every default registered so that
// AutomaticEnv can resolve SONAR_<GROUP>_<KEY> for each of them
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	server := DefaultServerConfig()
	v.SetDefault("server.addr", server.Addr)
	v.SetDefault("server.read_timeout", server.ReadTimeout)
	v.SetDefault("server.idle_timeout", server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", server.MaxBodyBytes)
	v.SetDefault("server.cors_origins", server.CORSOrigins)

	scanner := DefaultScannerConfig()
	v.SetDefault("scanner.port_batch_size", scanner.PortBatchSize)
	v.SetDefault("scanner.dns_batch_size", scanner.DNSBatchSize)
	v.SetDefault("scanner.max_concurrency", scanner.MaxConcurrency)
	v.SetDefault("scanner.default_port_range", scanner.DefaultPortRange)
	v.SetDefault("scanner.default_timeout", scanner.DefaultTimeout)
	v.SetDefault("scanner.banner_wait", scanner.BannerWait)
	v.SetDefault("scanner.banner_size", scanner.BannerSize)
	v.SetDefault("scanner.rate_limit", scanner.RateLimit)

	dns := DefaultDNSConfig()
	v.SetDefault("dns.server", dns.Server)
	v.SetDefault("dns.lookup_timeout", dns.LookupTimeout)
	v.SetDefault("dns.query_timeout", dns.QueryTimeout)

	log := DefaultLogConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.format", log.Format)

	return v
}

// splitList accepts both YAML lists and comma-separated env values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for item := range strings.SplitSeq(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
