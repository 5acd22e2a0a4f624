package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendAzure  = "azure"
)

// Config holds process settings. Values come from defaults, then the optional
// YAML file, then the environment.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Auth    AuthConfig    `yaml:"auth"`

	PublicURL      string        `yaml:"public_url"`
	Port           string        `yaml:"port"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	Debug          bool          `yaml:"debug"`
}

type StorageConfig struct {
	Backend          string `yaml:"backend"`
	ConnectionString string `yaml:"connection_string"`
	TasksTable       string `yaml:"tasks_table"`
}

type RedisConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	UpdatesChannel   string        `yaml:"updates_channel"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

type AuthConfig struct {
	Domain     string `yaml:"domain"`
	Audience   string `yaml:"audience"`
	TestMode   bool   `yaml:"test_mode"`
	TestSecret string `yaml:"test_secret"`
}

// Default returns the settings used for a local in-memory run.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:    BackendMemory,
			TasksTable: "tarefas",
		},
		Redis: RedisConfig{
			UpdatesChannel: "tarefas-updates",
			CacheTTL:       5 * time.Minute,
		},
		PublicURL:      "http://localhost:8080",
		Port:           "8080",
		ResyncInterval: 30 * time.Second,
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	// share links append "/task/<id>" to this verbatim
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	envStr("STORAGE_BACKEND", &c.Storage.Backend)
	envStr("STORAGE_CONNECTION_STRING", &c.Storage.ConnectionString)
	envStr("TASKS_TABLE", &c.Storage.TasksTable)
	envStr("REDIS_CONNECTION_STRING", &c.Redis.ConnectionString)
	envStr("UPDATES_CHANNEL", &c.Redis.UpdatesChannel)
	envStr("PUBLIC_URL", &c.PublicURL)
	envStr("PORT", &c.Port)
	envStr("AUTH0_DOMAIN", &c.Auth.Domain)
	envStr("AUTH0_AUDIENCE", &c.Auth.Audience)
	envStr("TEST_JWT_SECRET", &c.Auth.TestSecret)
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		c.Auth.TestMode = true
	}
	if v := os.Getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG: %w", err)
		}
		c.Debug = dbg
	}
	if err := envDur("TASKS_CACHE_TTL", &c.Redis.CacheTTL); err != nil {
		return err
	}
	return envDur("RESYNC_INTERVAL", &c.ResyncInterval)
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendAzure:
		if c.Storage.ConnectionString == "" || c.Storage.TasksTable == "" {
			return errors.New("missing storage config")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Redis.UpdatesChannel == "" {
		return errors.New("missing updates channel")
	}
	if c.Redis.CacheTTL < 0 || c.ResyncInterval < 0 {
		return errors.New("durations must not be negative")
	}
	if c.Auth.TestMode && c.Auth.TestSecret == "" {
		return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
	}
	return nil
}

// ListenAddr is the HTTP listen address.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envDur(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = d
	return nil
}

// RedisOptions parses a Redis connection string. Both redis:// URLs and the
// Azure style "host:port,password=...,ssl=true" form are accepted.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
