// Package config loads beefctl and beefmock settings from YAML or TOML files,
// an optional .env file and BEEFCLIENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/beefweb/beefclient/internal/client"
)

const (
	EnvBaseURL      = "BEEFCLIENT_URL"
	EnvPush         = "BEEFCLIENT_PUSH"
	EnvLogLevel     = "BEEFCLIENT_LOG_LEVEL"
	EnvMockHost     = "BEEFCLIENT_MOCK_HOST"
	EnvMockPort     = "BEEFCLIENT_MOCK_PORT"
	EnvMockInterval = "BEEFCLIENT_MOCK_TICK_INTERVAL"
)

type Config struct {
	Client ClientConfig `yaml:"client" toml:"client"`
	Log    LogConfig    `yaml:"log" toml:"log"`
	Mock   MockConfig   `yaml:"mock" toml:"mock"`
}

type ClientConfig struct {
	BaseURL          string            `yaml:"base_url" toml:"base_url"`
	Push             string            `yaml:"push" toml:"push"`
	ReconnectInitial time.Duration     `yaml:"reconnect_initial" toml:"reconnect_initial"`
	ReconnectMax     time.Duration     `yaml:"reconnect_max" toml:"reconnect_max"`
	Headers          map[string]string `yaml:"headers" toml:"headers"`
}

type LogConfig struct {
	Level   string `yaml:"level" toml:"level"`
	NoColor bool   `yaml:"no_color" toml:"no_color"`
}

type MockConfig struct {
	Host              string        `yaml:"host" toml:"host"`
	Port              int           `yaml:"port" toml:"port"`
	TickInterval      time.Duration `yaml:"tick_interval" toml:"tick_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle" toml:"broadcast_throttle"`
	Autoplay          bool          `yaml:"autoplay" toml:"autoplay"`
}

// Default returns the built-in settings: a local beefweb server on its
// default port.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:          "http://localhost:8880/api",
			Push:             "sse",
			ReconnectInitial: time.Second,
			ReconnectMax:     30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			Host:              "127.0.0.1",
			Port:              8880,
			TickInterval:      500 * time.Millisecond,
			BroadcastThrottle: 100 * time.Millisecond,
			Autoplay:          true,
		},
	}
}

// Load returns Default overlaid with the file at path, when path is not
// empty, and then with environment overrides. Files ending in .toml are read
// as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// LoadDotEnv reads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := os.Getenv(EnvPush); v != "" {
		cfg.Client.Push = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvMockHost); v != "" {
		cfg.Mock.Host = v
	}
	if v := os.Getenv(EnvMockPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMockPort, err)
		}
		cfg.Mock.Port = port
	}
	if v := os.Getenv(EnvMockInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMockInterval, err)
		}
		cfg.Mock.TickInterval = d
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("client.base_url %q is not an absolute URL", c.Client.BaseURL)
	}
	if _, err := client.ParsePushTransport(c.Client.Push); err != nil {
		return fmt.Errorf("client.push: %w", err)
	}
	if c.Client.ReconnectInitial <= 0 || c.Client.ReconnectMax < c.Client.ReconnectInitial {
		return fmt.Errorf("client reconnect delays must satisfy 0 < initial <= max")
	}
	if c.Mock.Port <= 0 || c.Mock.Port > 65535 {
		return fmt.Errorf("mock.port %d out of range", c.Mock.Port)
	}
	if c.Mock.TickInterval <= 0 {
		return fmt.Errorf("mock.tick_interval must be positive")
	}
	return nil
}

// PushTransport returns the parsed client.push setting.
func (c *Config) PushTransport() client.PushTransport {
	p, _ := client.ParsePushTransport(c.Client.Push)
	return p
}

// SessionOptions turns the client section into session options.
func (c *Config) SessionOptions() []client.Option {
	opts := []client.Option{
		client.WithPushTransport(c.PushTransport()),
		client.WithReconnect(c.Client.ReconnectInitial, c.Client.ReconnectMax),
	}
	for k, v := range c.Client.Headers {
		opts = append(opts, client.WithHeader(k, v))
	}
	return opts
}
