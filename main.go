package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	appconfig "gridflow/config"
	"gridflow/logger"
	"gridflow/pipeline"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	phase := flag.String("phase", "phase1", "pipeline phase to run (phase1 or phase2)")
	flag.Parse()

	if err := run(*configPath, *phase); err != nil {
		fmt.Fprintf(os.Stderr, "gridflow: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, phase string) error {
	// Credentials come from the environment; a local .env is optional.
	_ = godotenv.Load()

	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	ctx := context.Background()

	if cfg.Storage.S3.Enabled && cfg.Storage.S3.Region != "" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "Gridflow", cfg.Logging.DashboardName)
	}

	log.WithComponent("main").WithEnv("APP_ENV").WithFields(logger.Fields{
		"name":    cfg.Gridflow.Name,
		"version": cfg.Gridflow.Version,
		"phase":   phase,
	}).Info("starting pipeline")

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	return p.Run(ctx, phase)
}
