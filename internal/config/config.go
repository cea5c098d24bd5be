// Package config loads server configuration from a YAML file and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ROOMDISPLAY_ADDR.
const EnvPrefix = "ROOMDISPLAY"

// Config is the root configuration structure.
type Config struct {
	Addr           string          `mapstructure:"addr"`
	DataDir        string          `mapstructure:"data_dir"`
	StaticDir      string          `mapstructure:"static_dir"`
	Timezone       string          `mapstructure:"timezone"`
	Environment    string          `mapstructure:"environment"`
	LogLevel       string          `mapstructure:"log_level"`
	StatusInterval time.Duration   `mapstructure:"status_interval"`
	RoomsFile      string          `mapstructure:"rooms_file"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	Redis          RedisConfig     `mapstructure:"redis"`
	Google         OAuthConfig     `mapstructure:"google"`
	Microsoft      OAuthConfig     `mapstructure:"microsoft"`
}

// RateLimitConfig limits booking mutations per client address.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

// RedisConfig enables the cross-process room lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// OAuthConfig holds client credentials for an external calendar provider.
// Tenant is only used by Microsoft. BaseURL overrides the provider's API root.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Tenant       string `mapstructure:"tenant"`
	BaseURL      string `mapstructure:"base_url"`
}

// Enabled reports whether client credentials are configured.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != ""
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8099")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("static_dir", "./static")
	v.SetDefault("timezone", "Local")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("status_interval", 30*time.Second)
	v.SetDefault("rooms_file", "")
	v.SetDefault("rate_limit.per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.base_url", "")
	v.SetDefault("microsoft.client_id", "")
	v.SetDefault("microsoft.client_secret", "")
	v.SetDefault("microsoft.tenant", "common")
	v.SetDefault("microsoft.base_url", "")
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.StatusInterval < time.Second {
		return fmt.Errorf("status_interval must be at least 1s, got %s", c.StatusInterval)
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

// Location resolves the default room timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DatabasePath returns the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return strings.TrimRight(c.DataDir, "/") + "/room-display.db"
}

// RoomSeed describes a room provisioned at startup.
type RoomSeed struct {
	Name       string `yaml:"name"`
	Provider   string `yaml:"provider,omitempty"`
	CalendarID string `yaml:"calendar_id,omitempty"`
	Timezone   string `yaml:"timezone,omitempty"`
}

type roomsFile struct {
	Rooms []RoomSeed `yaml:"rooms"`
}

// LoadRoomSeeds parses a rooms file. A missing path yields no seeds.
func LoadRoomSeeds(path string) ([]RoomSeed, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rooms file: %w", err)
	}
	return parseRoomSeeds(data)
}

func parseRoomSeeds(data []byte) ([]RoomSeed, error) {
	var f roomsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rooms file: %w", err)
	}
	for i, r := range f.Rooms {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("rooms[%d]: name is required", i)
		}
	}
	return f.Rooms, nil
}
