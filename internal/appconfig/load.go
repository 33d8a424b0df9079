package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("workspace_dir", cfg.WorkspaceDir)
	v.SetDefault("state_file", cfg.StateFile)
	v.SetDefault("bus.depth", cfg.Bus.Depth)
	v.SetDefault("browser.enabled", cfg.Browser.Enabled)
	v.SetDefault("browser.remote_url", cfg.Browser.RemoteURL)
	v.SetDefault("browser.exec_path", cfg.Browser.ExecPath)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.poll_interval_ms", cfg.Browser.PollIntervalMS)
	v.SetDefault("browser.ignore_schemes", cfg.Browser.IgnoreSchemes)
	v.SetDefault("filesystem.enabled", cfg.Filesystem.Enabled)
	v.SetDefault("filesystem.watch_debounce_ms", cfg.Filesystem.WatchDebounceMS)
	v.SetDefault("persist.save_debounce_ms", cfg.Persist.SaveDebounceMS)
	v.SetDefault("persist.watch", cfg.Persist.Watch)
	v.SetDefault("socket.enabled", cfg.Socket.Enabled)
	v.SetDefault("socket.addr", cfg.Socket.Addr)
	v.SetDefault("socket.path", cfg.Socket.Path)
	v.SetDefault("socket.max_message_bytes", cfg.Socket.MaxMessageBytes)
	v.SetDefault("socket.send_buffer", cfg.Socket.SendBuffer)
	v.SetDefault("socket.ping_interval_seconds", cfg.Socket.PingIntervalSeconds)
	v.SetDefault("socket.allowed_origins", cfg.Socket.AllowedOrigins)
	v.SetDefault("retry.initial_ms", cfg.Retry.InitialMS)
	v.SetDefault("retry.max_ms", cfg.Retry.MaxMS)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.IsSet("workspace_dir") {
			return Config{}, fmt.Errorf("workspace_dir is required for config_version %d", CurrentConfigVersion)
		}
		if !v.IsSet("state_file") {
			return Config{}, fmt.Errorf("state_file is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.WorkspaceDir) == "" {
		return fmt.Errorf("workspace_dir must not be empty")
	}
	if strings.TrimSpace(cfg.StateFile) == "" {
		return fmt.Errorf("state_file must not be empty")
	}
	if cfg.Browser.PollIntervalMS <= 0 {
		return fmt.Errorf("browser.poll_interval_ms must be positive")
	}
	if cfg.Retry.InitialMS <= 0 || cfg.Retry.MaxMS < cfg.Retry.InitialMS {
		return fmt.Errorf("retry.max_ms must be at least retry.initial_ms and both positive")
	}
	if cfg.Socket.Enabled {
		if strings.TrimSpace(cfg.Socket.Addr) == "" {
			return fmt.Errorf("socket.addr is required when the socket is enabled")
		}
		if !strings.HasPrefix(cfg.Socket.Path, "/") {
			return fmt.Errorf("socket.path must start with /")
		}
		if cfg.Socket.Path == "/tabs" || cfg.Socket.Path == "/healthz" {
			return fmt.Errorf("socket.path %q collides with a built-in route", cfg.Socket.Path)
		}
	}
	if cfg.Browser.RemoteURL != "" {
		parsed, err := url.Parse(cfg.Browser.RemoteURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("browser.remote_url must include scheme and host (e.g. http://127.0.0.1:9222)")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.WorkspaceDir = expandEnv(cfg.WorkspaceDir)
	cfg.StateFile = expandEnv(cfg.StateFile)
	cfg.Browser.ExecPath = expandEnv(cfg.Browser.ExecPath)
	cfg.Browser.UserDataDir = expandEnv(cfg.Browser.UserDataDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
