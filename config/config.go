package config

import (
	"fmt"
	"strings"
	"time"

	"caparica-client/internal/core/domain"

	"github.com/spf13/viper"
)

// Identity sources.
const (
	IdentitySourceStatic = "static"
	IdentitySourceRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Signing  SigningConfig  `mapstructure:"signing"`
	Client   ClientConfig   `mapstructure:"client"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"` // debug, release, test
	MaxBodySize int64  `mapstructure:"max_body_size"`
}

type UpstreamConfig struct {
	URL     string        `mapstructure:"url"` // base URL of the Caparica-enabled API
	Timeout time.Duration `mapstructure:"timeout"`
}

// SigningConfig is the file/env view of the request signer settings.
// Keys holds per-role header overrides; roles left out keep their defaults.
type SigningConfig struct {
	Keys          map[string]string `mapstructure:"keys"`
	IncludePath   bool              `mapstructure:"include_path"`
	IncludeMethod bool              `mapstructure:"include_method"`
	Algorithm     string            `mapstructure:"algorithm"` // hmac-sha256, hmac-sha512, hmac-sha3-256, hmac-blake2b-256
	Encoding      string            `mapstructure:"encoding"`  // hex, base64
}

// Domain merges the configured overrides into the default signing
// configuration and validates the result.
func (s SigningConfig) Domain() (domain.SigningConfig, error) {
	return domain.DefaultSigningConfig().Merge(map[string]any{
		domain.ConfigKeyKeys:          s.Keys,
		domain.ConfigKeyIncludePath:   s.IncludePath,
		domain.ConfigKeyIncludeMethod: s.IncludeMethod,
	})
}

type ClientConfig struct {
	Source        string `mapstructure:"source"` // static, redis
	Code          string `mapstructure:"code"`
	Secret        string `mapstructure:"secret"`         // static source only
	EncryptionKey string `mapstructure:"encryption_key"` // 32-byte hex key; redis secrets are sealed when set
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CAPARICA_.
// Nested keys use underscore: CAPARICA_CLIENT_SECRET, CAPARICA_UPSTREAM_URL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_body_size", 10<<20)
	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("signing.include_path", true)
	v.SetDefault("signing.include_method", true)
	v.SetDefault("signing.algorithm", "hmac-sha256")
	v.SetDefault("signing.encoding", "hex")
	v.SetDefault("client.source", IdentitySourceStatic)
	v.SetDefault("client.code", "")
	v.SetDefault("client.secret", "")
	v.SetDefault("client.encryption_key", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "caparica:client:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CAPARICA_CLIENT_SECRET -> client.secret
	v.SetEnvPrefix("CAPARICA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, role := range domain.Roles {
		// Map entries are invisible to AutomaticEnv until bound.
		_ = v.BindEnv("signing.keys." + string(role))
	}

	// Read config file (not required; env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise only fail on the first
// proxied request.
func (c *Config) Validate() error {
	if _, err := c.Signing.Domain(); err != nil {
		return fmt.Errorf("signing: %w", err)
	}

	switch c.Client.Source {
	case IdentitySourceStatic, IdentitySourceRedis:
	default:
		return fmt.Errorf("client.source must be %q or %q, got %q", IdentitySourceStatic, IdentitySourceRedis, c.Client.Source)
	}
	return nil
}
