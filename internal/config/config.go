package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerCfg struct {
	Listen         string   `yaml:"listen"`
	ReadTimeoutMs  int      `yaml:"read_timeout_ms"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms"`
	TLSEnabled     bool     `yaml:"tls_enabled"`
	TLSCertFile    string   `yaml:"tls_cert_file"`
	TLSKeyFile     string   `yaml:"tls_key_file"`
	TrustedProxies []string `yaml:"trusted_proxies"` // CIDRs allowed to set X-Forwarded-For

	TrustedProxyCIDRs []*net.IPNet `yaml:"-"`
}

type BreakerCfg struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	OpenTimeoutSec   int `yaml:"open_timeout_sec"`
	MinRequests      int `yaml:"min_requests"`
}

type BackendCfg struct {
	BaseURL   string     `yaml:"base_url"`
	TimeoutMs int        `yaml:"timeout_ms"`
	Breaker   BreakerCfg `yaml:"circuit_breaker"`
}

type CookieCfg struct {
	Name     string `yaml:"name"`
	Domain   string `yaml:"domain"`
	Path     string `yaml:"path"`
	SameSite string `yaml:"same_site"` // Lax | Strict
	Secure   bool   `yaml:"secure"`
}

type SessionCfg struct {
	Store      string            `yaml:"store"` // memory | redis
	RedisAddr  string            `yaml:"redis_addr"`
	RedisDB    int               `yaml:"redis_db"`
	KeyPrefix  string            `yaml:"key_prefix"`
	IdleTTLSec int               `yaml:"idle_ttl_sec"`
	Capacity   int               `yaml:"capacity"`
	Keys       map[string]string `yaml:"keys"` // kid -> base64url secret
	CurrentKID string            `yaml:"current_kid"`
	Issuer     string            `yaml:"issuer"`
	Cookie     CookieCfg         `yaml:"cookie"`
}

type RateLimitCfg struct {
	Backend   string `yaml:"backend"` // memory | redis
	WindowSec int    `yaml:"window_sec"`
	Max       int    `yaml:"max"`
	Capacity  int    `yaml:"capacity"`
}

type SecurityCfg struct {
	AllowedContentTypes []string `yaml:"allowed_content_types"`
	MaxBodyBytes        int64    `yaml:"max_body_bytes"`
	DevMode             bool     `yaml:"dev_mode"`
}

type LoggingCfg struct {
	Level       string `yaml:"level"` // info|debug
	AnonymizeIP bool   `yaml:"anonymize_ip"`
}

type Config struct {
	Server    ServerCfg    `yaml:"server"`
	Backend   BackendCfg   `yaml:"backend"`
	Session   SessionCfg   `yaml:"session"`
	RateLimit RateLimitCfg `yaml:"rate_limit"`
	Security  SecurityCfg  `yaml:"security"`
	Logging   LoggingCfg   `yaml:"logging"`
}

// Load reads a YAML config, applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FRONTEND_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("FRONTEND_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("FRONTEND_REDIS_ADDR"); v != "" {
		c.Session.RedisAddr = v
	}
	if v := os.Getenv("FRONTEND_SESSION_KEY"); v != "" {
		if c.Session.CurrentKID == "" {
			c.Session.CurrentKID = "env"
		}
		if c.Session.Keys == nil {
			c.Session.Keys = make(map[string]string, 1)
		}
		c.Session.Keys[c.Session.CurrentKID] = v
	}
	if v := os.Getenv("FRONTEND_DEV_MODE"); v != "" {
		c.Security.DevMode = v == "true" || v == "1"
	}
}

func (c *Config) applyDefaults() error {
	if c.Server.Listen == "" {
		c.Server.Listen = ":3100"
	}
	if c.Server.ReadTimeoutMs == 0 {
		c.Server.ReadTimeoutMs = 5000
	}
	if c.Server.WriteTimeoutMs == 0 {
		c.Server.WriteTimeoutMs = 30000
	}
	c.Server.TrustedProxyCIDRs = c.Server.TrustedProxyCIDRs[:0]
	for _, s := range c.Server.TrustedProxies {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		c.Server.TrustedProxyCIDRs = append(c.Server.TrustedProxyCIDRs, n)
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:4000"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutMs == 0 {
		c.Backend.TimeoutMs = 10000
	}
	if c.Backend.Breaker.FailureThreshold == 0 {
		c.Backend.Breaker.FailureThreshold = 5
	}
	if c.Backend.Breaker.SuccessThreshold == 0 {
		c.Backend.Breaker.SuccessThreshold = 2
	}
	if c.Backend.Breaker.OpenTimeoutSec == 0 {
		c.Backend.Breaker.OpenTimeoutSec = 30
	}
	if c.Backend.Breaker.MinRequests == 0 {
		c.Backend.Breaker.MinRequests = 3
	}
	// Session defaults
	if c.Session.Store == "" {
		c.Session.Store = "memory"
	}
	if c.Session.KeyPrefix == "" {
		c.Session.KeyPrefix = "frontend:sess:"
	}
	if c.Session.IdleTTLSec == 0 {
		c.Session.IdleTTLSec = 3600
	}
	if c.Session.Capacity == 0 {
		c.Session.Capacity = 100_000
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "hmcts-frontend"
	}
	if c.Session.Cookie.Name == "" {
		c.Session.Cookie.Name = "hmcts_session"
	}
	if c.Session.Cookie.Path == "" {
		c.Session.Cookie.Path = "/"
	}
	if c.Session.Cookie.SameSite == "" {
		c.Session.Cookie.SameSite = "Lax"
	}
	// Rate limit defaults: 100 requests / 15 minutes
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.WindowSec == 0 {
		c.RateLimit.WindowSec = 900
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 100
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 50_000
	}
	if len(c.Security.AllowedContentTypes) == 0 {
		c.Security.AllowedContentTypes = []string{
			"application/json",
			"application/x-www-form-urlencoded",
			"multipart/form-data",
		}
	}
	if c.Security.MaxBodyBytes == 0 {
		c.Security.MaxBodyBytes = 1 << 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutMs) * time.Millisecond
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLSec) * time.Second
}

func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSec) * time.Second
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return errors.New("backend.base_url must be an http(s) URL")
	}
	if c.Backend.TimeoutMs < 0 || c.Backend.TimeoutMs > 60000 {
		return errors.New("backend.timeout_ms must be in [0, 60000]")
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return errors.New("session.redis_addr required when session.store is 'redis'")
		}
	default:
		return errors.New("session.store must be 'memory' or 'redis'")
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return errors.New("session.redis_addr required when rate_limit.backend is 'redis'")
		}
	default:
		return errors.New("rate_limit.backend must be 'memory' or 'redis'")
	}
	if c.RateLimit.WindowSec < 0 || c.RateLimit.Max < 0 {
		return errors.New("rate_limit.window_sec and rate_limit.max must be >= 0")
	}
	switch strings.ToLower(c.Session.Cookie.SameSite) {
	case "lax", "strict":
	default:
		return errors.New("session.cookie.same_site must be 'Lax' or 'Strict'")
	}
	if c.Session.CurrentKID == "" || len(c.Session.Keys) == 0 {
		return errors.New("session.keys and session.current_kid required")
	}
	cur, ok := c.Session.Keys[c.Session.CurrentKID]
	if !ok {
		return errors.New("session.current_kid not found in session.keys")
	}
	raw, err := base64.RawURLEncoding.DecodeString(cur)
	if err != nil {
		return fmt.Errorf("session key %q is not base64url: %w", c.Session.CurrentKID, err)
	}
	if len(raw) < 32 {
		return errors.New("session signing key too short; need >=32 bytes")
	}
	if c.Server.TLSEnabled && (c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file required when tls_enabled")
	}
	return nil
}
