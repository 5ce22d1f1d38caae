package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tanaygodse/markdowntogether/internal/config"
	"github.com/tanaygodse/markdowntogether/internal/database"
	"github.com/tanaygodse/markdowntogether/internal/document"
	"github.com/tanaygodse/markdowntogether/internal/hub"
	"github.com/tanaygodse/markdowntogether/internal/logging"
	"github.com/tanaygodse/markdowntogether/internal/presence"
	"github.com/tanaygodse/markdowntogether/internal/server"
	"github.com/tanaygodse/markdowntogether/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "markdowntogether-api",
		Short: "Collaborative markdown editing backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("send-buffer", defaults.GetInt("hub.send_buffer"), "Per-connection outbound queue size")
	cmd.PersistentFlags().Int("highlight-ttl", defaults.GetInt("presence.highlight_ttl_s"), "Edit highlight lifetime in seconds")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "hub.send_buffer", "send-buffer")
	bindFlag(cmd, "presence.highlight_ttl_s", "highlight-ttl")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	documentService, err := document.NewService(document.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: document.NewUUIDProvider(),
		Codes:      document.NewRoomCodeProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: users.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tracker := presence.NewTracker(presence.TrackerConfig{
		Clock:        time.Now,
		HighlightTTL: appConfig.HighlightTTL,
	})

	connectionHub := hub.NewHub(logger)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Documents:     documentService,
		Users:         userService,
		Presence:      tracker,
		Hub:           connectionHub,
		Logger:        logger,
		SendQueueSize: appConfig.SendBuffer,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go connectionHub.Run(signalCtx)
	go tracker.Run(signalCtx)

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
