package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/traceon/traceond/pkg/actions"
	"github.com/traceon/traceond/pkg/api"
	"github.com/traceon/traceond/pkg/auth"
	"github.com/traceon/traceond/pkg/config"
	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/metrics"
	"github.com/traceon/traceond/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "traceond",
	Short: "Traceon - live parcel tracking backend",
	Long: `Traceon is the backend for a smart parcel tracking dashboard.
It keeps shipments, tracker devices and user accounts in a single
embedded store and pushes role-scoped live views to every signed-in
dashboard over websockets.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Traceon version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking daemon",
	Long: `Run the tracking daemon: open the record store, start the HTTP and
websocket API, and serve until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.LogJSON,
			Output:     os.Stderr,
		})
		logger := log.WithComponent("main")
		metrics.SetVersion(Version)

		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}

		st, err := store.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		metrics.RegisterComponent("store", true, "open")

		provider := auth.NewProvider(st, cfg.JWTSecret)
		resolver := auth.NewResolver(st, cfg.MasterAdminEmail)
		svc := actions.NewService(st, cfg.OfflineAfter)

		collector := metrics.NewCollector(svc)
		collector.Start()

		server := api.NewServer(st, provider, resolver, svc, api.Options{
			OfflineAfter:      cfg.OfflineAfter,
			NotificationLimit: cfg.NotificationLimit,
			Debug:             cfg.Debug,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Serve(cfg.ListenAddr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("Shutting down")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("API shutdown failed")
		}
		collector.Stop()
		resolver.Close()
		if err := st.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}

		logger.Info().Msg("Shutdown complete")
		return nil
	},
}
