package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/agilecore/boardsyncd/internal/authn"
	"github.com/agilecore/boardsyncd/internal/broadcast"
	"github.com/agilecore/boardsyncd/internal/config"
	"github.com/agilecore/boardsyncd/internal/errs"
	"github.com/agilecore/boardsyncd/internal/idempotency"
	"github.com/agilecore/boardsyncd/internal/logging"
	"github.com/agilecore/boardsyncd/internal/registry"
	"github.com/agilecore/boardsyncd/internal/server"
	"github.com/agilecore/boardsyncd/internal/storage"
)

var (
	serveConfigPath string
	serveJSONLogs   bool
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the boardsyncd WebSocket collaboration server",
	Long:    `Launch boardsyncd: a multi-tenant WebSocket server that fans out work item, project, and sprint mutations to every subscribed client in real time.`,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a boardsync.toml config file (overrides discovery)")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "Emit structured JSON logs instead of the console theme")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errs.Wrap(err, "failed to load config")
	}
	if serveJSONLogs {
		cfg.JSONLogs = true
	}

	if err := logging.Initialize(cfg.JSONLogs); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Cleanup()

	printStartupBanner(cfg)

	mgr := storage.NewManager(cfg.StorageRoot, cfg.PoolMax, cfg.PoolAcquireTimeout)
	reg := registry.NewRegistry(cfg.GlobalMaxConnections, cfg.PerTenantMaxConnections)
	bc := broadcast.NewBroadcaster(cfg.BroadcastBuffer)
	idem, err := idempotency.NewStore(cfg.GlobalMaxConnections*4, cfg.IdempotencyTTL)
	if err != nil {
		return errs.Wrap(err, "failed to create idempotency cache")
	}
	defer idem.Close()
	verifier := authn.NewVerifier(cfg.AuthMode, cfg.JWTSecret, cfg.TrustedTenant)

	srv := server.New(cfg, mgr, reg, bc, idem, verifier)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errs.Wrap(err, "server failed to start")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrain+5*time.Second)
			defer cancel()
			shutdownDone <- srv.Shutdown(ctx, cfg.ShutdownDrain)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

func loadConfig() (*config.Config, error) {
	if serveConfigPath != "" {
		return config.LoadFromFile(serveConfigPath)
	}
	return config.Load()
}
