package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/mounttab"
	"pkt.systems/mounttab/httpapi"
	"pkt.systems/mounttab/internal/appconfig"
	"pkt.systems/mounttab/internal/browser"
	"pkt.systems/pslog"
)

type serveFlags struct {
	cfgPath      string
	workspaceDir string
	stateFile    string
	remoteURL    string
	headless     bool
	noBrowser    bool
	noFilesystem bool
	noSocket     bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve [workspace-dir]",
		Short: "Run the reconciliation engine",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				flags.workspaceDir = args[0]
			}
			applyServeFlags(cmd, &cfg, flags)

			engineCfg := toEngineConfig(cfg)
			engine, err := mounttab.New(engineCfg, mounttab.EngineDeps{Logger: logger}, engineOptions(cfg)...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := engine.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := engine.Stop(stopCtx); err != nil {
					logger.Warn("engine stop failed", "err", err)
				}
			}()
			return engine.Wait()
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.workspaceDir, "workspace-dir", "", "directory tree holding one directory per tab")
	cmd.Flags().StringVar(&flags.stateFile, "state-file", "", "JSON state file")
	cmd.Flags().StringVar(&flags.remoteURL, "remote-url", "", "attach to a running browser's DevTools endpoint")
	cmd.Flags().BoolVar(&flags.headless, "headless", false, "launch the browser headless")
	cmd.Flags().BoolVar(&flags.noBrowser, "no-browser", false, "disable the browser replica")
	cmd.Flags().BoolVar(&flags.noFilesystem, "no-filesystem", false, "disable the directory tree replica")
	cmd.Flags().BoolVar(&flags.noSocket, "no-socket", false, "disable the websocket server")
	return cmd
}

// applyServeFlags lets explicitly set flags override the config file.
func applyServeFlags(cmd *cobra.Command, cfg *appconfig.Config, flags serveFlags) {
	if flags.workspaceDir != "" {
		cfg.WorkspaceDir = flags.workspaceDir
	}
	if flags.stateFile != "" {
		cfg.StateFile = flags.stateFile
	}
	if flags.remoteURL != "" {
		cfg.Browser.RemoteURL = flags.remoteURL
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = flags.headless
	}
	if flags.noBrowser {
		cfg.Browser.Enabled = false
	}
	if flags.noFilesystem {
		cfg.Filesystem.Enabled = false
	}
	if flags.noSocket {
		cfg.Socket.Enabled = false
	}
}

func toEngineConfig(cfg appconfig.Config) mounttab.EngineConfig {
	return mounttab.EngineConfig{
		Engine: cfg.Engine(),
		Browser: browser.Config{
			RemoteURL:     cfg.Browser.RemoteURL,
			ExecPath:      cfg.Browser.ExecPath,
			Headless:      cfg.Browser.Headless,
			UserDataDir:   cfg.Browser.UserDataDir,
			NoSandbox:     cfg.Browser.NoSandbox,
			IgnoreSchemes: cfg.Browser.IgnoreSchemes,
		},
		Socket: httpapi.Config{
			Addr:            cfg.Socket.Addr,
			Path:            cfg.Socket.Path,
			MaxMessageBytes: int64(cfg.Socket.MaxMessageBytes),
			SendBuffer:      cfg.Socket.SendBuffer,
			PingInterval:    time.Duration(cfg.Socket.PingIntervalSeconds) * time.Second,
			AllowedOrigins:  cfg.Socket.AllowedOrigins,
		},
	}
}

func engineOptions(cfg appconfig.Config) []mounttab.EngineOption {
	var opts []mounttab.EngineOption
	if cfg.Browser.Enabled {
		opts = append(opts, mounttab.WithBrowser())
	}
	if cfg.Filesystem.Enabled {
		opts = append(opts, mounttab.WithFilesystem())
	}
	if cfg.Socket.Enabled {
		opts = append(opts, mounttab.WithSocket())
	}
	return opts
}
