package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/volsync/internal/client"
	"github.com/danmuck/volsync/internal/config"
	"github.com/danmuck/volsync/internal/logging"
	"github.com/danmuck/volsync/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "config file (defaults to ./"+config.DefaultPath+" when present)")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("volsync")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "volsync: %v\n", err)
		os.Exit(1)
	}

	if err := client.NewService(cfg).Run(); err != nil {
		log.Error().Err(err).Msg("volsync stopped")
		fmt.Fprintf(os.Stderr, "volsync: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (client.ServiceConfig, error) {
	if path == "" {
		return config.LoadDefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return client.ServiceConfig{}, err
	}
	log.Info().Str("path", path).Msg("loaded config")
	return cfg, nil
}
