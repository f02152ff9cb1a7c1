package main

import (
	"flag"
	"log"
	"os"

	"PipeKit/internal/di"
	"PipeKit/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if len(cfg.Poller.Symbols) == 0 {
		log.Fatalf("poller.symbols is empty")
	}

	app, cleanup, err := di.InitializePoller(cfg)
	if err != nil {
		log.Fatalf("poller initialization failed: %v", err)
	}

	err = app.Run()
	cleanup()
	if err != nil {
		log.Printf("poller error: %v", err)
		os.Exit(1)
	}
}
