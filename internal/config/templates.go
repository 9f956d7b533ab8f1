package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/volsync/internal/client"
)

// Template renders the default configuration as TOML.
func Template() (string, error) {
	data, err := toml.Marshal(toFile(client.DefaultServiceConfig()))
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg client.ServiceConfig) fileConfig {
	origins := cfg.Status.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:3000"}
	}
	return fileConfig{
		RelayAddress: cfg.Relay.Address,
		PollInterval: cfg.PollInterval.String(),
		MaxAttempts:  cfg.Supervisor.MaxAttempts,
		BaseBackoff:  cfg.Supervisor.Backoff.Base.String(),
		MaxBackoff:   cfg.Supervisor.Backoff.Max.String(),
		StableAfter:  cfg.Supervisor.StableAfter.String(),
		DialTimeout:  cfg.Relay.DialTimeout.String(),
		ReadLimit:    cfg.Relay.ReadLimit,
		TLS: tlsFile{
			CAFile:             cfg.Relay.TLS.CAFile,
			ServerName:         cfg.Relay.TLS.ServerName,
			InsecureSkipVerify: cfg.Relay.TLS.InsecureSkipVerify,
		},
		Status: statusFile{
			Addr:        cfg.Status.Addr,
			CORSOrigins: origins,
		},
	}
}
