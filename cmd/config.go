package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/store"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds the optional settings read from the user's config file.
// Command-line flags take precedence over every field here.
type Config struct {
	Database     string   `yaml:"database" json:"database"`
	StoragePaths []string `yaml:"storage_paths" json:"storage_paths"`
	Workers      int      `yaml:"workers" json:"workers"`
	ParseTimeout string   `yaml:"parse_timeout" json:"parse_timeout"`
}

var config Config

// loadConfig reads the config file into the package-level config.
// A missing default config file is fine; a missing --config file is an error.
func loadConfig() error {
	path := configPath
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".config", "copilot-archive", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("loaded config file")
	return nil
}

// resolvedDBPath applies the flag > config > default precedence for the
// archive database location.
func resolvedDBPath() string {
	if dbPath != "" {
		return expandHome(dbPath)
	}
	if config.Database != "" {
		return expandHome(config.Database)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "archive.db"
	}
	return filepath.Join(home, ".copilot-archive", "archive.db")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// openStore opens the archive database at the resolved path.
func openStore() (*store.Store, error) {
	return store.Open(resolvedDBPath())
}

// configTimeout returns the parse timeout from the config file, or zero
// when unset or invalid.
func configTimeout() time.Duration {
	if config.ParseTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(config.ParseTimeout)
	if err != nil {
		log.Warn().Str("parse_timeout", config.ParseTimeout).Msg("ignoring invalid parse_timeout in config")
		return 0
	}
	return d
}

// parseStorageRoots turns "path" or "path:edition" entries into storage
// roots. The edition tag is read from the last colon so Windows drive
// letters survive; an unrecognized tag is treated as part of the path.
func parseStorageRoots(entries []string) []internal.StorageRoot {
	roots := make([]internal.StorageRoot, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		path := entry
		kind := internal.SourceEditorStable
		if i := strings.LastIndex(entry, ":"); i > 0 {
			if k, ok := rootKinds[strings.ToLower(entry[i+1:])]; ok {
				path = entry[:i]
				kind = k
			}
		}
		roots = append(roots, internal.StorageRoot{Path: expandHome(path), Kind: kind})
	}
	return roots
}

var rootKinds = map[string]internal.SourceKind{
	"stable":     internal.SourceEditorStable,
	"insider":    internal.SourceEditorInsider,
	"insiders":   internal.SourceEditorInsider,
	"cli":        internal.SourceCLICurrent,
	"cli-legacy": internal.SourceCLILegacy,
}
