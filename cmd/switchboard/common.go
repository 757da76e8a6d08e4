package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/switchboard-ai/switchboard/internal/auth"
	"github.com/switchboard-ai/switchboard/internal/config"
	"github.com/switchboard-ai/switchboard/internal/contextmgr"
	"github.com/switchboard-ai/switchboard/internal/storage"
	"github.com/switchboard-ai/switchboard/internal/storage/postgres"
	"github.com/switchboard-ai/switchboard/internal/storage/sqlite"
)

// loadConfig reads the config file named by --config and applies
// environment overrides.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

// newContextManager builds the snapshot manager, sealing snapshots at
// rest when ENCRYPTION_KEY is configured.
func newContextManager(cfg *config.Config, store storage.Store, log *slog.Logger) (*contextmgr.Manager, error) {
	m := contextmgr.NewManager(store, store, log)
	if cfg.EncryptionKey != "" {
		enc, err := auth.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		m.UseSealer(enc)
	}
	return m, nil
}

// openStore opens the configured storage engine, applying any pending
// migrations.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.DBType {
	case "postgresql":
		return postgres.New(cfg.Storage.ConnectionString)
	case "sqlite":
		return sqlite.New(cfg.Storage.DBPath)
	default:
		return nil, fmt.Errorf("unknown db_type %q", cfg.Storage.DBType)
	}
}
