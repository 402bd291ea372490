// Package cli implements the biobuddy CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/biobuddy/internal/store"
)

var (
	dbPath  string
	verbose bool
	logger  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "biobuddy",
	Short: "Build subject-specific biomechanical models",
	Long: "Build bioMod models from generic definitions and marker data, and keep the results " +
		"in a versioned, searchable SQLite catalog.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Catalog path (default: $BIOBUDDY_DB or ~/.biobuddy/models.db)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log progress to stderr")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("BIOBUDDY_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".biobuddy", "models.db")
}

func openStore() (*store.SQLiteStore, error) {
	path := getDBPath()
	logger.Debug("open catalog", "path", path)
	return store.NewSQLiteStore(path)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// splitList parses a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// checkMeta accepts an empty value or a JSON document.
func checkMeta(meta string) error {
	if meta != "" && !json.Valid([]byte(meta)) {
		return fmt.Errorf("--meta is not valid JSON: %s", meta)
	}
	return nil
}
