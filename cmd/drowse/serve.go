package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/drowse"
	"pkt.systems/drowse/chromeload"
	"pkt.systems/drowse/core"
	"pkt.systems/drowse/httpapi"
	"pkt.systems/drowse/internal/appconfig"
	"pkt.systems/drowse/internal/memloader"
	"pkt.systems/drowse/internal/pressure"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var noMonitor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the drowse server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			path := cfgPath
			if path == "" {
				defaultPath, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			cfg, err := appconfig.Load(path)
			if err != nil {
				return err
			}

			loader, closeLoader, err := selectLoader(cfg, logger)
			if err != nil {
				return err
			}
			if closeLoader != nil {
				defer func() { _ = closeLoader() }()
			}
			logger.Info("content loader selected", "backend", cfg.Browser.Backend)

			serverCfg := drowse.ServerConfig{
				Service:    cfg.Hibernation.ServiceConfig(cfg.StateDir),
				Pressure:   cfg.Pressure.MonitorConfig(),
				HTTP:       toHTTPConfig(cfg.HTTP),
				HubHistory: 1000,
			}
			serverDeps := drowse.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Loader: loader,
					Logger: logger,
				},
			}
			opts := []drowse.ServerOption{drowse.WithHTTP()}
			if !noMonitor {
				serverDeps.PressureSource = pressure.SystemSource{}
				opts = append(opts, drowse.WithPressureMonitor())
			}
			server, err := drowse.New(serverCfg, serverDeps, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", serverCfg.HTTP.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&noMonitor, "no-pressure-monitor", false, "disable the memory pressure monitor")
	return cmd
}

func selectLoader(cfg appconfig.Config, logger pslog.Logger) (core.ContentLoader, func() error, error) {
	switch cfg.Browser.Backend {
	case "chrome":
		loader := chromeload.New(chromeload.Config{
			ExecPath:    cfg.Browser.ExecPath,
			Headless:    cfg.Browser.Headless,
			NoSandbox:   cfg.Browser.NoSandbox,
			UserDataDir: cfg.Browser.UserDataDir,
		}, logger)
		return loader, loader.Close, nil
	case "memory":
		return memloader.New(cfg.Browser.MaxHandles, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported browser.backend %q", cfg.Browser.Backend)
	}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:     cfg.Addr,
		BaseURL:  cfg.BaseURL,
		BasePath: cfg.BasePath,
	}
}
