package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegate-ai/codegate/internal/config"
	"github.com/codegate-ai/codegate/internal/engine"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/runtime"
	"github.com/codegate-ai/codegate/internal/server"
	"github.com/codegate-ai/codegate/internal/store"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine HTTP server",
	Long: `Start the engine as a server that exposes session resolution and
tool-call evaluation to an orchestrator over HTTP.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Directory to load project config from")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHostname != "" {
		cfg.Server.Hostname = serveHostname
	}

	storage := store.New(cfg.StoragePath)
	eng := engine.New(cfg, store.NewSessions(storage), store.NewAuditLog(storage), runtime.LocalOpener{})

	serverCfg := server.DefaultConfig()
	serverCfg.Hostname = cfg.Server.Hostname
	serverCfg.Port = cfg.Server.Port
	srv := server.New(serverCfg, eng)

	go func() {
		logging.Info().
			Str("version", Version).
			Str("hostname", cfg.Server.Hostname).
			Int("port", cfg.Server.Port).
			Str("approvedRoot", cfg.ApprovedRoot).
			Msg("engine listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
