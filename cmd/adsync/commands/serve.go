package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/logger"
	"github.com/arcline/adsync/server"
)

// ServeCmd starts the adsync server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the adsync server and job workers",
	Long: `Launch the HTTP API, the async job workers, and the WebSocket job
feed. Runs until interrupted.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	port := cfg.GetServerPort()
	if servePort != 0 {
		port = servePort
	}

	ctx := context.Background()
	srv := server.NewServer(ctx, database, cfg)

	// Hot-reload config edits while running. The server re-reads origins
	// and freshness on each request through an atomic snapshot, so handing
	// it the new pointer is enough. Engine thresholds need a restart.
	if configPath != "" {
		watcher, err := config.NewConfigWatcher(configPath)
		if err != nil {
			logger.Warnw("Config watcher unavailable", "path", configPath, "error", err)
		} else {
			watcher.OnReload(func(newCfg *config.Config) error {
				srv.ReloadConfig(newCfg)
				logger.Infow("Configuration reloaded", "path", configPath)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// Shut down cleanly on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infow("Received signal, shutting down", "signal", sig.String())
		if err := srv.Stop(); err != nil {
			logger.Errorw("Shutdown error", "error", err)
		}
	}()

	return srv.Start(port)
}
