package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-ibov-predictor/internal/config"
	delivery "golang-ibov-predictor/internal/delivery/http"
	_ "golang-ibov-predictor/internal/docs"
	"golang-ibov-predictor/internal/repository"
	"golang-ibov-predictor/internal/scheduler"
	"golang-ibov-predictor/internal/service"
	"golang-ibov-predictor/pkg/logger"
	"golang-ibov-predictor/pkg/postgres"
	"golang-ibov-predictor/pkg/redis"
	"golang-ibov-predictor/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	swagger "github.com/swaggo/echo-swagger"
	"google.golang.org/genai"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the IBOV predictor service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting IBOV Predictor Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Initialize optional Telegram notifier
	var notifier telegram.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Initialize repositories
	assetRepo := repository.NewIndexAssetRepository(db.DB)
	refinedRepo := repository.NewRefinedDataRepository(db.DB)
	modelRepo := repository.NewTrainedModelRepository(db.DB)

	var aiRepo repository.AIRepository
	if cfg.Gemini.Enabled {
		genAiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.Gemini.APIKey,
		})
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini client", logger.ErrorField(err))
		}
		aiRepo, err = repository.NewGeminiAIRepository(&cfg.Gemini, appLogger, genAiClient)
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini repository", logger.ErrorField(err))
		}
	}

	// Initialize services
	scraperSvc := service.NewScraperService(cfg.Scraper, assetRepo, appLogger)
	featureSvc := service.NewFeatureService(assetRepo, appLogger)
	refinerSvc := service.NewRefinerService(assetRepo, refinedRepo, featureSvc, redisClient, appLogger,
		service.WithMinSnapshots(cfg.ML.MinSnapshots))
	trainingSvc := service.NewTrainingService(refinedRepo, modelRepo, redisClient, notifier,
		cfg.ML.ModelsDir, cfg.ML.MinTrainSamples, appLogger)

	// Start the daily collection scheduler
	sched := scheduler.New(cfg.Scheduler, scraperSvc, refinerSvc, notifier, appLogger)
	if err := sched.Start(ctx); err != nil {
		appLogger.Fatal("Failed to start scheduler", logger.ErrorField(err))
	}
	defer sched.Stop()

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	// Initialize handlers and routes
	apiV1 := e.Group("/api/v1")

	indexHandler := delivery.NewIndexHandler(scraperSvc, appLogger)
	indexHandler.RegisterRoutes(apiV1.Group("/index"))

	mlHandler := delivery.NewMLHandler(refinerSvc, trainingSvc, refinedRepo, aiRepo, appLogger)
	mlHandler.RegisterRoutes(apiV1.Group("/ml"))

	e.GET("/swagger/*", swagger.WrapHandler)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	// Gracefully shutdown the server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

// @title IBOV Predictor API
// @version 1.0
// @description Scrapes the daily IBOV composition, refines it into a labeled dataset and serves BUY/HOLD/SELL predictions.
// @BasePath /api/v1
func main() {
	rootCmd := &cobra.Command{Use: "ibov-predictor"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing ibov-predictor CLI: %s\n", err)
		os.Exit(1)
	}
}
