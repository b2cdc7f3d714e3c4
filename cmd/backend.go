package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/speech"
)

// openStore opens the configured record backend and loads it into a store.
func openStore(ctx context.Context, cfg *config.Config) (*database.Store, error) {
	var backend database.RecordWriter
	switch cfg.Store.Backend {
	case "sqlite":
		b, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		backend = b
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required for the postgres store")
		}
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		backend = postgres.NewRecordRepository(pool)
	case "memory":
		backend = mock.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown store backend %q: expected sqlite, postgres or memory", cfg.Store.Backend)
	}

	store, err := database.OpenStore(ctx, backend, cfg.Store.Dim)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

// newMatcher creates the matcher for the configured threshold and index.
func newMatcher(cfg *config.MatchConfig) (*matcher.Matcher, error) {
	switch cfg.Index {
	case "", "flat":
		return matcher.New(cfg.Threshold), nil
	case "hnsw":
		return matcher.New(cfg.Threshold, matcher.WithIndex(matcher.NewIndex())), nil
	}
	return nil, fmt.Errorf("unknown match index %q: expected flat or hnsw", cfg.Index)
}

// sessionOptions builds the collaborators shared by recognition sessions.
func sessionOptions(cfg *config.Config, sink recognition.AttendanceSink, announcer recognition.Announcer, met *metrics.Metrics) recognition.SessionOptions {
	opts := recognition.SessionOptions{
		Sink:      sink,
		Announcer: announcer,
		Phrases:   cfg.Phrases,
		Metrics:   met,
	}
	if cfg.Session.AnnounceUnknown {
		opts.UnknownPhrase = cfg.Phrases.Unknown
	}
	return opts
}

// newAnnouncer speaks with the configured command, or prints phrases when none is set.
func newAnnouncer(cfg *config.SpeechConfig) (recognition.Announcer, error) {
	if cfg.Command == "" {
		return speech.NewLogAnnouncer(os.Stdout), nil
	}
	return speech.NewCommandAnnouncer(cfg.Command)
}

// expandImagePaths expands directories into their image files, sorted by name.
func expandImagePaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() || !isImageFile(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(arg, e.Name()))
		}
		sort.Strings(files)
		paths = append(paths, files...)
	}
	return paths, nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
