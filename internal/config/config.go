// Package config loads the volsync TOML file into a client.ServiceConfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/volsync/internal/client"
	"github.com/danmuck/volsync/internal/relay"
)

const (
	DefaultPath = "volsync.toml"
	EnvAddress  = "VOLSYNC_RELAY_ADDRESS"
)

var ErrInvalidConfig = errors.New("config: invalid")

type fileConfig struct {
	RelayAddress string     `toml:"relay_address"`
	PollInterval string     `toml:"poll_interval"`
	MaxAttempts  int        `toml:"max_attempts"`
	BaseBackoff  string     `toml:"base_backoff"`
	MaxBackoff   string     `toml:"max_backoff"`
	StableAfter  string     `toml:"stable_after"`
	DialTimeout  string     `toml:"dial_timeout"`
	ReadLimit    int64      `toml:"read_limit"`
	TLS          tlsFile    `toml:"tls"`
	Status       statusFile `toml:"status"`
}

type tlsFile struct {
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type statusFile struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Load starts from client.DefaultServiceConfig and overrides every key the
// file defines, then the environment. An empty path skips the file.
func Load(path string) (client.ServiceConfig, error) {
	cfg := client.DefaultServiceConfig()

	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return client.ServiceConfig{}, err
		}
	}
	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return client.ServiceConfig{}, err
	}
	return cfg, nil
}

// LoadDefaultPath loads DefaultPath when it exists and defaults otherwise.
func LoadDefaultPath() (client.ServiceConfig, error) {
	if _, err := os.Stat(DefaultPath); err != nil {
		return Load("")
	}
	return Load(DefaultPath)
}

func decodeFile(path string, cfg *client.ServiceConfig) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("relay_address") {
		cfg.Relay.Address = strings.TrimSpace(raw.RelayAddress)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"base_backoff", raw.BaseBackoff, &cfg.Supervisor.Backoff.Base},
		{"max_backoff", raw.MaxBackoff, &cfg.Supervisor.Backoff.Max},
		{"stable_after", raw.StableAfter, &cfg.Supervisor.StableAfter},
		{"dial_timeout", raw.DialTimeout, &cfg.Relay.DialTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("max_attempts") {
		cfg.Supervisor.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("read_limit") {
		cfg.Relay.ReadLimit = raw.ReadLimit
	}

	if meta.IsDefined("tls", "ca_file") {
		cfg.Relay.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.Relay.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.Relay.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}

	if meta.IsDefined("status", "addr") {
		cfg.Status.Addr = strings.TrimSpace(raw.Status.Addr)
	}
	if meta.IsDefined("status", "cors_origins") {
		cfg.Status.CORSOrigins = raw.Status.CORSOrigins
	}
	return nil
}

func applyEnv(cfg *client.ServiceConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvAddress)); v != "" {
		cfg.Relay.Address = v
	}
}

func Validate(cfg client.ServiceConfig) error {
	if _, err := relay.ParseEndpoint(cfg.Relay.Address); err != nil {
		return fmt.Errorf("%w: relay_address: %v", ErrInvalidConfig, err)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	if cfg.Supervisor.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidConfig)
	}
	if cfg.Supervisor.Backoff.Base <= 0 || cfg.Supervisor.Backoff.Max <= 0 {
		return fmt.Errorf("%w: backoff durations must be positive", ErrInvalidConfig)
	}
	if cfg.Supervisor.Backoff.Max < cfg.Supervisor.Backoff.Base {
		return fmt.Errorf("%w: max_backoff below base_backoff", ErrInvalidConfig)
	}
	if cfg.Supervisor.StableAfter <= 0 {
		return fmt.Errorf("%w: stable_after must be positive", ErrInvalidConfig)
	}
	if cfg.Relay.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.Relay.ReadLimit <= 0 {
		return fmt.Errorf("%w: read_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
