package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/gamehost/internal/logger"
	"github.com/loykin/gamehost/internal/metrics"
	"github.com/loykin/gamehost/internal/process"
	itls "github.com/loykin/gamehost/internal/tls"
)

// Defaults applied by LoadConfig and Default.
const (
	DefaultPollInterval   = time.Second
	DefaultTerminateGrace = 5 * time.Second
	DefaultServerListen   = "127.0.0.1:8080"
	DefaultBasePath       = "/api"
	DefaultMetricsListen  = "127.0.0.1:9090"
)

// Config is the agent configuration read from TOML.
type Config struct {
	HostID                string        `mapstructure:"host_id"`
	AuthToken             string        `mapstructure:"auth_token"`
	AgentURL              string        `mapstructure:"agent_url"`
	InitializationTimeout time.Duration `mapstructure:"initialization_timeout"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	TerminateGrace        time.Duration `mapstructure:"terminate_grace"`
	Env                   []string      `mapstructure:"env"`
	EnvFiles              []string      `mapstructure:"env_files"`

	Log       logger.Config           `mapstructure:"log"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
	Server    ServerConfig            `mapstructure:"server"`
	History   HistoryConfig           `mapstructure:"history"`
	Processes []process.Configuration `mapstructure:"processes"`
}

type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Listen         string        `mapstructure:"listen"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// Sampler returns the resource sampler settings.
func (m MetricsConfig) Sampler() metrics.SamplerConfig {
	return metrics.SamplerConfig{Enabled: m.Enabled, Interval: m.SampleInterval}
}

type ServerConfig struct {
	Listen   string      `mapstructure:"listen"`
	BasePath string      `mapstructure:"base_path"`
	TLS      itls.Config `mapstructure:"tls"`
}

type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("initialization_timeout", process.DefaultInitializationTimeout)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("terminate_grace", DefaultTerminateGrace)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.listen", DefaultMetricsListen)
	v.SetDefault("metrics.sample_interval", metrics.DefaultSampleInterval)
	v.SetDefault("server.listen", DefaultServerListen)
	v.SetDefault("server.base_path", DefaultBasePath)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// defaults only; decoding cannot fail
	_ = v.Unmarshal(&c)
	return &c
}

// LoadConfig reads a TOML file, applies defaults and GAMEHOST_* environment
// overrides for top-level scalar keys, merges env_files into Env and
// validates every [[processes]] entry.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("GAMEHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range []string{"host_id", "auth_token", "agent_url"} {
		_ = v.BindEnv(k)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	env, err := mergeEnvFiles(filepath.Dir(path), c.EnvFiles, c.Env)
	if err != nil {
		return nil, err
	}
	c.Env = env
	if d := c.Server.TLS.Dir; d != "" && !filepath.IsAbs(d) {
		c.Server.TLS.Dir = filepath.Join(filepath.Dir(path), d)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks durations and process entries.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.TerminateGrace < 0 {
		errs = append(errs, fmt.Errorf("terminate_grace cannot be negative, got %s", c.TerminateGrace))
	}
	for i, p := range c.Processes {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("processes[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// mergeEnvFiles loads each .env file in order, then applies env on top.
// Relative file paths are resolved against base.
func mergeEnvFiles(base string, files, env []string) ([]string, error) {
	if len(files) == 0 {
		return env, nil
	}
	var out []string
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(base, f)
		}
		pairs, err := LoadEnvFile(f)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", f, err)
		}
		out = append(out, pairs...)
	}
	return append(out, env...), nil
}

// LoadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes) and returns "KEY=VALUE" entries in file order. Lines starting with
// # are ignored.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok && strings.TrimSpace(k) != "" {
			out = append(out, strings.TrimSpace(k)+"="+strings.TrimSpace(v))
		}
	}
	return out, nil
}
