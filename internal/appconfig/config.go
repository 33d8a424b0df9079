package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/mounttab/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	WorkspaceDir  string           `mapstructure:"workspace_dir" yaml:"workspace_dir"`
	StateFile     string           `mapstructure:"state_file" yaml:"state_file"`
	Bus           BusConfig        `mapstructure:"bus" yaml:"bus"`
	Browser       BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Filesystem    FilesystemConfig `mapstructure:"filesystem" yaml:"filesystem"`
	Persist       PersistConfig    `mapstructure:"persist" yaml:"persist"`
	Socket        SocketConfig     `mapstructure:"socket" yaml:"socket"`
	Retry         RetryConfig      `mapstructure:"retry" yaml:"retry"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BusConfig sizes the action bus.
type BusConfig struct {
	Depth int `mapstructure:"depth" yaml:"depth"`
}

// BrowserConfig selects and tunes the browser replica.
type BrowserConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	RemoteURL      string   `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath       string   `mapstructure:"exec_path" yaml:"exec_path"`
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	UserDataDir    string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	NoSandbox      bool     `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	PollIntervalMS int      `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	IgnoreSchemes  []string `mapstructure:"ignore_schemes" yaml:"ignore_schemes"`
}

// FilesystemConfig tunes the directory-tree replica.
type FilesystemConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	WatchDebounceMS int  `mapstructure:"watch_debounce_ms" yaml:"watch_debounce_ms"`
}

// PersistConfig tunes the state file replica.
type PersistConfig struct {
	SaveDebounceMS int  `mapstructure:"save_debounce_ms" yaml:"save_debounce_ms"`
	Watch          bool `mapstructure:"watch" yaml:"watch"`
}

// SocketConfig configures the websocket server.
type SocketConfig struct {
	Enabled             bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr                string `mapstructure:"addr" yaml:"addr"`
	Path                string `mapstructure:"path" yaml:"path"`
	MaxMessageBytes     int    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer          int    `mapstructure:"send_buffer" yaml:"send_buffer"`
	PingIntervalSeconds int    `mapstructure:"ping_interval_seconds" yaml:"ping_interval_seconds"`
	// AllowedOrigins lists browser origins (e.g. chrome-extension://<id>)
	// allowed to connect. Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// RetryConfig controls reconnect backoff for external resources.
type RetryConfig struct {
	InitialMS int `mapstructure:"initial_ms" yaml:"initial_ms"`
	MaxMS     int `mapstructure:"max_ms" yaml:"max_ms"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		WorkspaceDir:  filepath.Join(home, ".mounttab", "workspace"),
		StateFile:     filepath.Join(home, ".mounttab", "state", "browser-tabs.json"),
		Bus: BusConfig{
			Depth: schema.DefaultBusDepth,
		},
		Browser: BrowserConfig{
			Enabled:        true,
			RemoteURL:      "",
			ExecPath:       "",
			Headless:       false,
			UserDataDir:    filepath.Join(home, ".mounttab", "browser"),
			NoSandbox:      false,
			PollIntervalMS: int(schema.DefaultPollInterval / time.Millisecond),
			IgnoreSchemes:  []string{"devtools", "chrome-extension"},
		},
		Filesystem: FilesystemConfig{
			Enabled:         true,
			WatchDebounceMS: int(schema.DefaultWatchDebounce / time.Millisecond),
		},
		Persist: PersistConfig{
			SaveDebounceMS: int(schema.DefaultSaveDebounce / time.Millisecond),
			Watch:          true,
		},
		Socket: SocketConfig{
			Enabled:             true,
			Addr:                "127.0.0.1:3030",
			Path:                "/chat",
			MaxMessageBytes:     64 << 10,
			SendBuffer:          256,
			PingIntervalSeconds: 30,
		},
		Retry: RetryConfig{
			InitialMS: int(schema.DefaultRetryInitial / time.Millisecond),
			MaxMS:     int(schema.DefaultRetryMax / time.Millisecond),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mounttab", "config.yaml"), nil
}

// Engine converts the file settings into the engine's runtime config.
func (c Config) Engine() schema.EngineConfig {
	return schema.EngineConfig{
		WorkspaceDir:   c.WorkspaceDir,
		StateFile:      c.StateFile,
		BusDepth:       c.Bus.Depth,
		PollInterval:   millis(c.Browser.PollIntervalMS),
		SaveDebounce:   millis(c.Persist.SaveDebounceMS),
		WatchDebounce:  millis(c.Filesystem.WatchDebounceMS),
		WatchStateFile: c.Persist.Watch,
		RetryInitial:   millis(c.Retry.InitialMS),
		RetryMax:       millis(c.Retry.MaxMS),
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
