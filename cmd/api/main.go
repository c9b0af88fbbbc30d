package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/lernlog/ingest/internal/config"
	"github.com/lernlog/ingest/internal/httpserver"
	"github.com/lernlog/ingest/internal/ingest"
	"github.com/lernlog/ingest/internal/logger"
	"github.com/lernlog/ingest/internal/store"
)

// main boots the service: config → logger → DB → schema → HTTP server.
func main() {
	// Optional .env for local development; env vars win in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer logg.Sync()

	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		logg.Fatal("connect to postgres", "error", err)
	}
	defer db.Close()

	// Ensure required tables/indexes exist so `docker compose up --build` is enough.
	if err := db.EnsureSchema(); err != nil {
		logg.Fatal("apply schema", "error", err)
	}

	svc := ingest.NewService(db, db, logg)
	router := httpserver.NewRouter(cfg, db, svc)

	logg.Info("server started", "addr", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		logg.Fatal("server stopped", "error", err)
	}
}
