// ABOUTME: Entry point for roomkeeper
// ABOUTME: Loads config, restores persisted state, and runs the moderation bridge

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/roomkeeper/internal/bridge"
	"github.com/2389/roomkeeper/internal/config"
	"github.com/2389/roomkeeper/internal/dedupe"
	"github.com/2389/roomkeeper/internal/expiry"
	"github.com/2389/roomkeeper/internal/ledger"
	"github.com/2389/roomkeeper/internal/platform"
	"github.com/2389/roomkeeper/internal/state"
)

const banner = `
    ╭────────────────────────────────────╮
    │                                    │
    │   ┏━┓┏━┓┏━┓┏┳┓╻┏ ┏━╸┏━╸┏━┓┏━╸┏━┓  │
    │   ┣┳┛┃ ┃┃ ┃┃┃┃┣┻┓┣╸ ┣╸ ┣━┛┣╸ ┣┳┛  │
    │   ╹┗╸┗━┛┗━┛╹ ╹╹ ╹┗━╸┗━╸╹  ┗━╸╹┗╸  │
    │                                    │
    │      channel moderation bot        │
    │                                    │
    ╰────────────────────────────────────╯
`

// getConfigPath returns the path to the config file.
// Priority: ROOMKEEPER_CONFIG env var > XDG_CONFIG_HOME/roomkeeper/config.toml > ~/.config/roomkeeper/config.toml
func getConfigPath() string {
	if envPath := os.Getenv("ROOMKEEPER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "roomkeeper", "config.toml")
}

// getDataPath returns the path to the roomkeeper data directory.
// Priority: XDG_DATA_HOME/roomkeeper > ~/.local/share/roomkeeper
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "roomkeeper")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// A .env file can supply AUTH_TOKEN and friends before config loads
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	configPath := getConfigPath()
	dataPath := getDataPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(dataPath, "state.json")
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = filepath.Join(dataPath, "ledger.db")
	}

	// Print startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Room:       %s\n", cfg.Room.ID)
	if cfg.Policy.FleetingEnabled {
		green.Print("    ▶ ")
		fmt.Printf("Fleeting:   delete after %s\n", cfg.Delay())
	}
	fmt.Println()

	// A corrupt state file is fatal; an absent one is a fresh start
	st, err := state.Load(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("loading state (delete %s to start fresh): %w", cfg.State.Path, err)
	}
	cache := dedupe.FromState(st)
	logger.Info("state restored", "seen_keys", cache.Len(), "path", cfg.State.Path)

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("opening deletion ledger: %w", err)
	}
	defer led.Close()

	matrixClient, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}
	client := platform.NewMatrix(matrixClient)

	sweeper := expiry.New(client, cfg.Delay(),
		expiry.WithJournal(led),
		expiry.WithMaxAttempts(cfg.Policy.MaxAttempts),
	)
	defer sweeper.Stop()

	b := bridge.New(cfg, matrixClient, client, cache, sweeper, led)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting roomkeeper")
	return b.Run(ctx)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
