package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EngineConfig defines paths and timings for the reconciliation engine.
type EngineConfig struct {
	WorkspaceDir string
	StateFile    string
	BusDepth     int
	// PollInterval is the browser replica's snapshot interval.
	PollInterval time.Duration
	// SaveDebounce delays state file writes so bursts of actions coalesce.
	SaveDebounce time.Duration
	// WatchDebounce delays directory tree reads after filesystem events.
	WatchDebounce  time.Duration
	WatchStateFile bool
	RetryInitial   time.Duration
	RetryMax       time.Duration
}

// Defaults for EngineConfig.
const (
	DefaultBusDepth      = 256
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultSaveDebounce  = 200 * time.Millisecond
	DefaultWatchDebounce = 50 * time.Millisecond
	DefaultRetryInitial  = 500 * time.Millisecond
	DefaultRetryMax      = 10 * time.Second
)

// NormalizeEngineConfig applies defaults and validates the config.
func NormalizeEngineConfig(cfg EngineConfig) (EngineConfig, error) {
	if cfg.WorkspaceDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.WorkspaceDir = filepath.Join(home, ".mounttab", "workspace")
	}
	if cfg.StateFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.StateFile = filepath.Join(home, ".mounttab", "state", "browser-tabs.json")
	}
	if cfg.BusDepth <= 0 {
		cfg.BusDepth = DefaultBusDepth
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SaveDebounce < 0 {
		cfg.SaveDebounce = 0
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = DefaultWatchDebounce
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = DefaultRetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	if cfg.RetryMax < cfg.RetryInitial {
		return EngineConfig{}, errors.New("retry max must not be less than retry initial")
	}
	if within(cfg.WorkspaceDir, cfg.StateFile) {
		return EngineConfig{}, errors.New("state file must not live inside the workspace directory")
	}
	return cfg, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
