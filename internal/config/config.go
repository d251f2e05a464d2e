package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment. A .env
// file in the working directory is honored for local development.
type Config struct {
	ServerHost string
	ServerPort string

	// WorkspaceDir is the project root the generated source files live in.
	WorkspaceDir string
	// SnapshotDir holds the durable per-document JSON snapshots.
	SnapshotDir string
	// JournalPath is the embedded change-journal database file.
	JournalPath string

	// DebounceWindow is the file-watcher settle period.
	DebounceWindow time.Duration
	// BacklogSize bounds the per-participant replay backlog (elements).
	BacklogSize int
	// QueueSize bounds each document loop's change queue.
	QueueSize int
	// GracePeriod is how long a document loop survives with no sessions.
	GracePeriod time.Duration

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	workspace := getEnv("WORKSPACE_DIR", ".")

	cfg := &Config{
		ServerHost: getEnv("SERVER_HOST", "localhost"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		WorkspaceDir: workspace,
		SnapshotDir:  getEnv("SNAPSHOT_DIR", filepath.Join(workspace, ".vss", "snapshots")),
		JournalPath:  getEnv("JOURNAL_PATH", filepath.Join(workspace, ".vss", "journal.db")),

		DebounceWindow: time.Duration(getEnvInt("DEBOUNCE_MS", 200)) * time.Millisecond,
		BacklogSize:    getEnvInt("BACKLOG_SIZE", 256),
		QueueSize:      getEnvInt("QUEUE_SIZE", 128),
		GracePeriod:    time.Duration(getEnvInt("SESSION_GRACE_PERIOD_SEC", 30)) * time.Second,

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.DebounceWindow < 50*time.Millisecond || cfg.DebounceWindow > 5*time.Second {
		return nil, fmt.Errorf("DEBOUNCE_MS must be between 50 and 5000")
	}
	if abs, err := filepath.Abs(cfg.WorkspaceDir); err == nil {
		cfg.WorkspaceDir = abs
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
