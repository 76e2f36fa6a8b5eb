package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectbridge/inspectbridge/internal/bridge"
	"github.com/inspectbridge/inspectbridge/internal/config"
	"github.com/inspectbridge/inspectbridge/internal/logging"
	"github.com/inspectbridge/inspectbridge/internal/server"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge server",
	Long: `Start the inspectbridge HTTP server.

Editor webviews connect to it for proxied view-server requests (/rpc)
and event streaming (/events). View servers are launched lazily on the
first proxied request.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 7676, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Workspace directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if appConfig.LogLevel == "" {
		appConfig.LogLevel = logLevel
	}
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(appConfig.LogLevel)
	logging.Init(cfg)

	log := logging.Component("main")
	log.Info().
		Str("version", Version).
		Str("directory", workDir).
		Msg("starting inspectbridge")

	app, err := bridge.New(bridge.Config{
		Dir:           workDir,
		AppConfig:     appConfig,
		ServerLogPath: paths.ServerLogPath,
	})
	if err != nil {
		return err
	}
	app.Start()
	defer app.Stop()

	// Reload-on-change for the layered config files.
	cfgWatcher, err := config.NewWatcher(workDir, app.Bus())
	if err != nil {
		log.Warn().Err(err).Msg("config watching disabled")
	} else {
		cfgWatcher.Start()
		defer cfgWatcher.Stop()
	}

	serverConfig := server.DefaultConfig()
	if appConfig.Port != 0 {
		serverConfig.Port = appConfig.Port
	}
	if cmd.Flags().Changed("port") {
		serverConfig.Port = servePort
	}
	if appConfig.Hostname != "" {
		serverConfig.Hostname = appConfig.Hostname
	}
	if cmd.Flags().Changed("hostname") {
		serverConfig.Hostname = serveHostname
	}

	srv := server.New(serverConfig, app)

	go func() {
		log.Info().
			Str("hostname", serverConfig.Hostname).
			Int("port", serverConfig.Port).
			Msg("bridge listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}

	return nil
}
