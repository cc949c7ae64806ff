package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/ontime/internal/config"
	"github.com/goodtune/ontime/internal/storage"
)

var importCumulative bool

var importCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Import legacy per-day JSON stat files into the configured store",
	Long: `Import a directory of legacy stats_YYYY-MM-DD.json files, each mapping
user IDs to seconds spent online that day. With --cumulative the files hold
running totals instead, and each day's time is recovered by subtracting the
previous day's value.`,
	Example: `  ontime -c config.yaml import /var/backups/stats
  ontime import --cumulative /var/backups/stats`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importCumulative, "cumulative", false, "Treat files as running totals, importing day-over-day differences")
	rootCmd.AddCommand(importCmd)
}

// statFile pairs a legacy file with the day parsed from its name.
type statFile struct {
	path string
	day  time.Time
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	files, err := collectStatFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no stats_YYYY-MM-DD.json files found in %s", args[0])
	}

	imported := 0
	previous := map[string]int64{}
	for _, f := range files {
		entries, totals, err := loadStatFile(f, previous)
		if err != nil {
			return err
		}
		if importCumulative {
			previous = totals
		}
		if len(entries) == 0 {
			continue
		}
		if err := store.Append(cmd.Context(), entries); err != nil {
			return fmt.Errorf("failed to import %s: %w", f.path, err)
		}
		imported += len(entries)
	}

	refreshImportedNames(cmd.Context(), args[0], store)

	fmt.Printf("Imported %d log entries from %d files.\n", imported, len(files))
	return nil
}

// collectStatFiles lists legacy stat files sorted by day.
func collectStatFiles(dir string) ([]statFile, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read import directory: %w", err)
	}

	var files []statFile
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, "stats_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		dayPart := strings.TrimSuffix(strings.TrimPrefix(name, "stats_"), ".json")
		day, err := time.Parse(storage.DayFormat, dayPart)
		if err != nil {
			log.Warn().Str("file", name).Msg("Skipping file with unparseable date")
			continue
		}
		files = append(files, statFile{path: filepath.Join(dir, name), day: day})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].day.Before(files[j].day) })
	return files, nil
}

// loadStatFile converts one legacy file into log entries. Records with
// non-numeric user IDs or non-positive durations are skipped, not fatal.
func loadStatFile(f statFile, previous map[string]int64) ([]storage.LogEntry, map[string]int64, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}

	var entries []storage.LogEntry
	for uid, seconds := range raw {
		if !isNumericID(uid) {
			log.Warn().Str("file", f.path).Str("user_id", uid).Msg("Skipping record with non-numeric user ID")
			continue
		}
		if importCumulative {
			seconds -= previous[uid]
		}
		if seconds <= 0 {
			continue
		}
		end := time.Duration(seconds) * time.Second
		if end > storage.EndOfDayMark {
			end = storage.EndOfDayMark
		}
		entries = append(entries, storage.LogEntry{
			UserID: uid,
			Day:    f.day,
			Start:  0,
			End:    end,
		})
	}

	// Deterministic insert order, mainly for tests and log readability.
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })

	return entries, raw, nil
}

func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// refreshImportedNames carries over a translations.json file if the legacy
// directory has one.
func refreshImportedNames(ctx context.Context, dir string, store storage.Store) {
	data, err := os.ReadFile(filepath.Join(dir, "translations.json"))
	if err != nil {
		return
	}
	var names map[string]string
	if err := json.Unmarshal(data, &names); err != nil {
		log.Warn().Err(err).Msg("Failed to parse translations.json, skipping display names")
		return
	}
	if len(names) == 0 {
		return
	}
	if err := store.SaveNames(ctx, names); err != nil {
		log.Warn().Err(err).Msg("Failed to save imported display names")
	}
}
