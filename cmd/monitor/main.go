// File: cmd/monitor/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/artematbio/bio-whale-monitor/internal/chain"
	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/dispatcher"
	"github.com/artematbio/bio-whale-monitor/internal/evaluator"
	"github.com/artematbio/bio-whale-monitor/internal/metrics"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/internal/normalizer"
	"github.com/artematbio/bio-whale-monitor/internal/notification"
	"github.com/artematbio/bio-whale-monitor/internal/price"
	"github.com/artematbio/bio-whale-monitor/internal/report"
	"github.com/artematbio/bio-whale-monitor/internal/scheduler"
	"github.com/artematbio/bio-whale-monitor/internal/server"
	"github.com/artematbio/bio-whale-monitor/internal/storage"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires all components together
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	storage      storage.Storage
	clients      map[models.Chain]chain.Client
	notification *notification.NotificationManager
	scheduler    *scheduler.Scheduler
	reporter     *report.DailyReporter
	server       *server.HTTPServer
	metrics      *metrics.Manager
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app.metrics = metrics.NewManager()

	// Storage
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}
	app.storage = store

	// Chain adapters, one per chain with monitored wallets
	app.clients = make(map[models.Chain]chain.Client)
	for _, w := range app.config.Wallets {
		c := models.Chain(w.Chain)
		if _, ok := app.clients[c]; ok {
			continue
		}
		switch c {
		case models.ChainEthereum:
			app.clients[c] = chain.NewEthereumClient(&app.config.Ethereum, app.config.Tokens)
		case models.ChainSolana:
			app.clients[c] = chain.NewSolanaClient(&app.config.Solana, app.config.Tokens)
		}
	}

	// Notification manager
	app.notification = notification.NewNotificationManager(&app.config.Notifications)

	// Processing pipeline
	norm := normalizer.New(app.config.Tokens)
	priceService := price.NewCoingeckoService(&app.config.Price, app.config.Tokens, app.storage)
	eval := evaluator.New(&app.config.Thresholds, app.config.Tokens)
	disp := dispatcher.NewDispatcher(&app.config.Notifications, app.storage, app.notification)

	app.scheduler = scheduler.NewScheduler(
		&app.config.Scheduler,
		app.config.Wallets,
		app.clients,
		app.storage,
		norm,
		priceService,
		eval,
		disp,
		app.metrics,
	)

	// Daily report
	app.reporter = report.NewDailyReporter(&app.config.Report, app.storage, app.notification)

	// HTTP server
	app.server, err = server.NewHTTPServer(
		&app.config.Server,
		app.storage,
		app.scheduler,
		app.notification,
		app.reporter,
		app.metrics,
		AppVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting whale monitor")

	if err := app.notification.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start notification manager: %w", err)
	}

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := app.scheduler.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := app.reporter.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start daily reporter: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"wallets":        len(app.config.Wallets),
		"tokens":         len(app.config.Tokens),
	}).Info("Whale monitor started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping whale monitor")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}

	if app.reporter != nil {
		if err := app.reporter.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop daily reporter")
		}
	}

	if app.scheduler != nil {
		if err := app.scheduler.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop scheduler")
		}
	}

	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop notification manager")
		}
	}

	for _, client := range app.clients {
		if err := client.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close chain client")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Whale monitor stopped successfully")
	return nil
}

// CLI Commands

var rootCmd = &cobra.Command{
	Use:     "whale-monitor",
	Short:   "DAO treasury and whale wallet monitor",
	Long:    `Monitors DAO treasury and whale wallets on Solana and Ethereum for large token movements and sends alerts with at-most-once delivery.`,
	Version: AppVersion,
	RunE:    runMonitor,
}

// runMonitor is the main command to run the monitor
func runMonitor(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("whale-monitor %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Wallets: %d\n", len(cfg.Wallets))
		fmt.Printf("Tokens: %d\n", len(cfg.Tokens))

		return nil
	},
}

// testCmd tests connectivity to the configured endpoints
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx := context.Background()
		fmt.Println("Testing whale monitor connectivity...")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("  storage connection OK")

		if cfg.Ethereum.RPCURL != "" {
			fmt.Printf("Testing Ethereum RPC at %s...\n", cfg.Ethereum.RPCURL)
			client := chain.NewEthereumClient(&cfg.Ethereum, cfg.Tokens)
			if err := client.HealthCheck(ctx); err != nil {
				return fmt.Errorf("ethereum health check failed: %w", err)
			}
			client.Close()
			fmt.Println("  ethereum RPC OK")
		}

		if cfg.Solana.RPCURL != "" {
			fmt.Printf("Testing Solana RPC at %s...\n", cfg.Solana.RPCURL)
			client := chain.NewSolanaClient(&cfg.Solana, cfg.Tokens)
			if err := client.HealthCheck(ctx); err != nil {
				return fmt.Errorf("solana health check failed: %w", err)
			}
			client.Close()
			fmt.Println("  solana RPC OK")
		}

		fmt.Println("\nAll connectivity tests passed!")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
