package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/safar/dealership/internal/config"
	"github.com/safar/dealership/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: "console",
		Output: "stderr",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "set up logger: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
