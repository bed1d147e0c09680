package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/username/taxcore/src/config"
	"github.com/username/taxcore/src/database"
	"github.com/username/taxcore/src/handlers"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/parsers"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/security"
	"github.com/username/taxcore/src/services"
	"github.com/username/taxcore/src/taxconfig"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "taxcore",
		Short:         "Tax document ingestion and return calculation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			logger.InitLogger(config.Cfg.LogLevel)
			return config.Cfg.Validate()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importConfigCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(calculateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is everything the commands share once the database is open.
type app struct {
	store  *repository.SQLiteStore
	config *taxconfig.Store
}

func openApp(ctx context.Context) (*app, error) {
	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	if err := database.InitDB(config.Cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	store := repository.NewSQLiteStore(database.DB)
	a := &app{store: store, config: taxconfig.NewStore(store, nil)}
	if err := a.ensureTaxConfig(ctx); err != nil {
		database.DB.Close()
		return nil, err
	}
	return a, nil
}

// ensureTaxConfig imports the shipped tables into an empty database.
func (a *app) ensureTaxConfig(ctx context.Context) error {
	_, err := a.config.GetActiveYear(ctx)
	if err == nil || !errors.Is(err, taxconfig.ErrConfigNotFound) {
		return err
	}
	f, err := os.Open(config.Cfg.TaxConfigPath)
	if err != nil {
		logger.L.Warn("No tax tables loaded and none found to import", "path", config.Cfg.TaxConfigPath, "error", err)
		return nil
	}
	defer f.Close()
	_, err = a.config.Import(ctx, f)
	return err
}

func (a *app) close() {
	if err := database.DB.Close(); err != nil {
		logger.L.Warn("Failed to close database", "error", err)
	}
}

func (a *app) buildServices(ctx context.Context) (services.DocumentService, services.ReturnService, error) {
	extractor, err := parsers.NewExtractorFromConfig(ctx, config.Cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.L.Info("Extraction strategies configured", "providers", extractor.Providers(), "threshold", extractor.Threshold())

	reportCache := services.NewReportCache(config.Cfg.CacheExpiration)
	docs := services.NewDocumentService(
		a.store, extractor,
		services.NewTextProducer(config.Cfg.MaxUploadSizeBytes),
		services.NewNotifier(),
		reportCache,
		config.Cfg.ExtractionConcurrency,
	)
	returns := services.NewReturnService(a.store, a.config, reportCache, extractor.Threshold())
	return docs, returns, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to serve the API")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			docs, returns, err := a.buildServices(ctx)
			if err != nil {
				return err
			}

			logger.L.Info("Configuring routes...")
			router := handlers.NewRouter(handlers.RouterConfig{
				Auth:           security.NewAuthService(config.Cfg.JWTSecret),
				Documents:      docs,
				Returns:        returns,
				Config:         a.config,
				MaxUploadSize:  config.Cfg.MaxUploadSizeBytes,
				RateLimitEvery: config.Cfg.RateLimitEvery,
				RateLimitBurst: config.Cfg.RateLimitBurst,
			})

			serverAddr := ":" + config.Cfg.Port
			server := &http.Server{
				Addr:         serverAddr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 2 * time.Minute,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.L.Error("Server shutdown failed", "error", err)
				}
			}()

			logger.L.Info("Server starting", "address", serverAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.L.Error("Failed to start server", "error", err)
				stdlog.Printf("Failed to start server: %v", err)
				return err
			}
			logger.L.Info("Server stopped gracefully.")
			return nil
		},
	}
}
