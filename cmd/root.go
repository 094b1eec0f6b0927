package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"anchorproto/anchord/internal/config"
	"anchorproto/anchord/internal/index"
	"anchorproto/anchord/internal/protocol"
)

var (
	dbPath     string
	configPath string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "anchord",
	Short: "Anchor Protocol message indexer and thread engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the index database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to anchord.toml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
}

// DiscoverDB finds the database path using priority: env > flag > config > walk-up
func DiscoverDB() (string, error) {
	// 1. Environment variable
	if envPath := os.Getenv("ANCHORD_DB"); envPath != "" {
		return envPath, nil
	}

	// 2. CLI flag
	if dbPath != "" {
		return dbPath, nil
	}

	// 3. Config file
	if cfg != nil && cfg.Index.DBPath != "" {
		if cfg.Index.DBPath != ".anchord.db" {
			return cfg.Index.DBPath, nil
		}
	}

	// 4. Walk up from CWD looking for an existing index
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, ".anchord.db")
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 5. Fresh default in the current directory
	return ".anchord.db", nil
}

// OpenIndexer discovers and opens the index with the default kind
// registry. The caller closes the returned store.
func OpenIndexer() (*index.Indexer, *index.Store, error) {
	path, err := DiscoverDB()
	if err != nil {
		return nil, nil, err
	}
	store, err := index.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	return index.NewIndexer(store, protocol.DefaultRegistry()), store, nil
}
