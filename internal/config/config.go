// Package config loads and hot-reloads the server's runtime configuration.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agilecore/boardsyncd/internal/errs"
)

// AuthMode selects how AuthVerifier extracts a TenantContext from an
// incoming upgrade request.
type AuthMode string

const (
	AuthModeSigned       AuthMode = "signed"
	AuthModeTrustedLocal AuthMode = "trusted_local"
)

// Config covers every option in the configuration surface: storage layout,
// connection admission, rate limiting, broadcast, idempotency, and shutdown.
type Config struct {
	StorageRoot string `mapstructure:"storage_root"`

	GlobalMaxConnections    int `mapstructure:"global_max_connections"`
	PerTenantMaxConnections int `mapstructure:"per_tenant_max_connections"`

	RateLimitWindow        time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax           int           `mapstructure:"rate_limit_max"`
	RateLimitMaxViolations int           `mapstructure:"rate_limit_max_violations"`

	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`

	PoolMax            int           `mapstructure:"pool_max"`
	PoolAcquireTimeout time.Duration `mapstructure:"pool_acquire_timeout"`

	ShutdownDrain time.Duration `mapstructure:"shutdown_drain"`

	AuthMode      AuthMode `mapstructure:"auth_mode"`
	JWTSecret     string   `mapstructure:"jwt_secret"`
	TrustedTenant string   `mapstructure:"trusted_tenant"`

	ListenAddr string `mapstructure:"listen_addr"`
	JSONLogs   bool   `mapstructure:"json_logs"`

	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

var (
	globalConfig   *Config
	viperInstance  *viper.Viper
)

// SetDefaults installs the baked-in defaults used when neither a config
// file nor an environment variable supplies a value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage_root", "./data/tenants")
	v.SetDefault("global_max_connections", 10000)
	v.SetDefault("per_tenant_max_connections", 500)
	v.SetDefault("rate_limit_window", "1s")
	v.SetDefault("rate_limit_max", 20)
	v.SetDefault("rate_limit_max_violations", 5)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("heartbeat_interval", "30s")
	v.SetDefault("broadcast_buffer", 1024)
	v.SetDefault("idempotency_ttl", "60m")
	v.SetDefault("pool_max", 10)
	v.SetDefault("pool_acquire_timeout", "5s")
	v.SetDefault("shutdown_drain", "10s")
	v.SetDefault("auth_mode", string(AuthModeSigned))
	v.SetDefault("trusted_tenant", "dev")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("json_logs", false)
	v.SetDefault("allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	v.SetDefault("allow_all_origins", false)
}

// Load reads configuration from (in ascending precedence) defaults, an
// optional TOML file discovered by findConfigFile, and BOARDSYNC_*
// environment variables. The result is cached; call Reset in tests that
// need a fresh read.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(err, "unmarshal config")
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from one explicit TOML path, bypassing
// the file-discovery walk and the process-wide cache. Used by tests and by
// --config overrides.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errs.Wrapf(err, "read config file %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrapf(err, "unmarshal config from %s", path)
	}
	return &cfg, nil
}

// Reset clears the cached configuration and Viper instance. Tests call this
// between cases that load different env/file combinations.
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// GetViper exposes the underlying Viper instance for callers (the config
// watcher) that need to re-read and re-unmarshal on file change.
func GetViper() *viper.Viper {
	return initViper()
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix("BOARDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		_ = v.ReadInConfig() // missing/invalid file just means defaults+env apply
	}

	viperInstance = v
	return v
}

// findConfigFile walks up from the working directory looking for
// boardsync.toml.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := dir + "/boardsync.toml"
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := parentDir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func parentDir(dir string) string {
	idx := strings.LastIndexByte(dir, '/')
	if idx <= 0 {
		return "/"
	}
	return dir[:idx]
}
