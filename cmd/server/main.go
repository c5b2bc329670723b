package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/nhkhanh/cardfall/internal/api"
	"github.com/nhkhanh/cardfall/internal/config"
	"github.com/nhkhanh/cardfall/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	server := api.NewServer(cfg, database)

	slog.Info("starting server", "addr", cfg.Addr, "llm_enabled", cfg.OpenRouterKey != "")
	if err := http.ListenAndServe(cfg.Addr, server); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
