package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"PaperDesk/internal/di"
	"PaperDesk/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate the config, print the resolved desk setup and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *check {
		fmt.Print(summary(cfg))
		return
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Printf("run: %v", err)
		os.Exit(1)
	}
}

func summary(cfg *config.Config) string {
	var b strings.Builder
	on := func(enabled bool) string {
		if enabled {
			return "on"
		}
		return "off"
	}
	fmt.Fprintf(&b, "portfolio  %s cash=%.2f symbols=%s\n",
		cfg.Portfolio.ID, cfg.Portfolio.InitialCash, strings.Join(cfg.Portfolio.Symbols, ","))
	fmt.Fprintf(&b, "backend    %s\n", cfg.Backend.Type)
	fmt.Fprintf(&b, "http       :%d\n", cfg.Server.Port)
	fmt.Fprintf(&b, "clickhouse %s\n", on(cfg.ClickHouse.Enabled))
	fmt.Fprintf(&b, "redis      %s (queue %s)\n", on(cfg.Redis.Enabled), on(cfg.Redis.Queue.Enabled))
	fmt.Fprintf(&b, "kafka      %s (consumer %s)\n", on(cfg.Kafka.Enabled), on(cfg.Kafka.Consumer.Enabled))
	fmt.Fprintf(&b, "finnhub    %s\n", on(cfg.Finnhub.Enabled))
	fmt.Fprintf(&b, "learning   scheduled=%v at %s\n", cfg.Learning.Scheduled, cfg.Learning.RunAt)
	return b.String()
}
