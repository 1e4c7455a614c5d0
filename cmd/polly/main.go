package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/accounts"
	"github.com/MarcoPoloResearchLab/polly/internal/auth"
	"github.com/MarcoPoloResearchLab/polly/internal/config"
	"github.com/MarcoPoloResearchLab/polly/internal/database"
	"github.com/MarcoPoloResearchLab/polly/internal/logging"
	"github.com/MarcoPoloResearchLab/polly/internal/polls"
	"github.com/MarcoPoloResearchLab/polly/internal/server"
	"github.com/MarcoPoloResearchLab/polly/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "polly",
		Short: "Polly polling web application",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema and data migrations, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	}
	rootCmd.AddCommand(migrateCmd)

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
	cmd.PersistentFlags().String("public-base-url", defaults.GetString("public.base_url"), "Public base URL used in share links")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "SQLite path or Postgres connection URL")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().Bool("cookie-secure", defaults.GetBool("auth.cookie_secure"), "Mark cookies Secure")
	cmd.PersistentFlags().Int("share-ttl-hours", defaults.GetInt("share.ttl_hours"), "Share link lifetime in hours (0 never expires)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Rotated JSON log file (empty logs to stderr only)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "public.base_url", "public-base-url")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.cookie_secure", "cookie-secure")
	bindFlag(cmd, "share.ttl_hours", "share-ttl-hours")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return readConfigFile(viper.GetViper(), cfgFile)
}

// readConfigFile fails on any read or parse error when path is set.
func readConfigFile(configViper *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	configViper.SetConfigFile(path)
	if err := configViper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func openDatabase() (config.AppConfig, *zap.Logger, *gorm.DB, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return config.AppConfig{}, nil, nil, err
	}

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		logger.Error("database open failed", zap.Error(err))
		_ = logger.Sync()
		return config.AppConfig{}, nil, nil, err
	}
	return appConfig, logger, db, nil
}

func runMigrations() error {
	_, logger, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	logger.Info("migrations complete")
	return sqlDB.Close()
}

func runServer(ctx context.Context) error {
	appConfig, logger, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	idProvider := polls.NewUUIDProvider()

	accountService, err := accounts.NewService(accounts.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	pollService, err := polls.NewService(polls.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		IDProvider:   idProvider,
		Logger:       logger,
		ShareBaseURL: appConfig.PublicBaseURL,
		ShareTTL:     appConfig.ShareTTL,
	})
	if err != nil {
		return err
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	renderer, err := web.NewRenderer(time.Now)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Accounts:         accountService,
		Polls:            pollService,
		TokenIssuer:      tokenIssuer,
		SessionValidator: sessionValidator,
		Renderer:         renderer,
		Events:           server.NewAuthEventDispatcher(server.AuthEventDispatcherConfig{}),
		FlashSecret:      appConfig.FlashSecret,
		CookieSecure:     appConfig.CookieSecure,
		TokenTTL:         appConfig.TokenTTL,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	streamCtx, closeStreams := context.WithCancel(context.Background())
	defer closeStreams()

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return streamCtx
		},
	}
	// open event streams only end when their request context does
	httpServer.RegisterOnShutdown(closeStreams)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
