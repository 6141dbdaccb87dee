package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"KlineStream/internal/di"
	"KlineStream/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "config file path (defaults and env only when empty)")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s source=%s bus=%s topic=%s windows=%v",
		cfg.Environment, cfg.Source.Type, cfg.Bus.Backend, cfg.Bus.Topic, cfg.Windows)

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Run application (blocks until signal)
	err = app.Run(ctx)
	stop()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
