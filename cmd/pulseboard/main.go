// pulseboard ingests device telemetry and service logs, persists them
// in PostgreSQL, and serves dashboard clients with historical queries
// and a live event stream, gated by authenticated, rate-limited access.
//
// It reads configuration from config.json in the working directory,
// connects to PostgreSQL, bootstraps the schema, and starts the HTTP
// server.
//
// Usage:
//
//	./pulseboard              # reads ./config.json, starts server
//	docker compose up -d      # runs via Docker with mounted config
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulseboard/pulseboard/internal/account"
	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/database"
	"github.com/pulseboard/pulseboard/internal/ingest"
	"github.com/pulseboard/pulseboard/internal/relay"
	"github.com/pulseboard/pulseboard/internal/server"
	"github.com/pulseboard/pulseboard/internal/telemetry"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("pulseboard starting...")

	// Load configuration.
	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (listen=%s db=%s/%s)", cfg.ListenAddr, cfg.DBConn, cfg.DBName)

	// Root context cancelled on SIGINT or SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down...", sig)
		cancel()
	}()

	// Connect to PostgreSQL and bootstrap schema.
	db, err := database.Open(ctx, cfg.ConnString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected, schema bootstrapped")

	// Wire the stores and core subsystems.
	accounts := account.NewStore(db)
	gate := account.NewGate(accounts, cfg.ThrottleMaxAttempts, cfg.ThrottleWindow())
	tokens := auth.NewManager(cfg.JWTSecret, "pulseboard")
	data := telemetry.NewStore(db)
	gateway := ingest.NewGateway(data)
	streams := relay.New(data, relay.Options{Streams: telemetry.Streams})

	// Start the HTTP server (blocks until context is cancelled).
	srv := server.New(cfg, gate, tokens, gateway, data, accounts, streams)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("pulseboard stopped")
}
