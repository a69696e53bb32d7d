// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"picme-bot/config"
	"picme-bot/internal/astria"
	"picme-bot/internal/bot"
	"picme-bot/internal/db"
	"picme-bot/internal/models"
	"picme-bot/internal/payment"
	"picme-bot/internal/server"
	"picme-bot/internal/whatsapp"
	"picme-bot/pkg/logger"
)

func main() {
	// Initialize logger
	l := logger.New()
	l.Info("Starting PicMe bot...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l.Fatal("Failed to load config", err)
	}

	// Validate critical configuration
	if cfg.WhatsApp.APIKey == "" || cfg.WhatsApp.NumberID == "" {
		l.Fatal("WhatsApp configuration is incomplete")
	}
	if cfg.Astria.APIURL == "" || cfg.Astria.APIKey == "" {
		l.Fatal("Generation service configuration is incomplete")
	}

	// Initialize database connection with retry
	var database *db.PostgresDB
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(cfg)
		if err == nil {
			break
		}
		l.Error("Failed to connect to database, retrying...", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatal("Failed to connect to database after multiple attempts", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(context.Background()); err != nil {
		l.Fatal("Failed to ensure database schema", err)
	}

	// External collaborators
	waClient := whatsapp.NewClient(cfg, l)
	astriaClient := astria.NewClient(cfg, l)
	links := payment.NewLinkProvider(cfg)

	msnOpts := whatsapp.MessengerOptions{
		ImageThreshold: cfg.Images.Threshold,
		GuideURL:       cfg.Images.GuideURL,
		ExamplesURL:    cfg.Images.ExamplesURL,
		LitePrice:      cfg.Tiers.LitePrice,
		StandardPrice:  cfg.Tiers.StandardPrice,
		PremiumPrice:   cfg.Tiers.PremiumPrice,
	}
	factory := func(phone string, lang models.Language) bot.Notifier {
		return whatsapp.NewMessenger(waClient, phone, lang, msnOpts, l)
	}

	dispatcher := bot.NewDispatcher(database, astriaClient, waClient, links, factory, bot.Config{
		ImageThreshold:  cfg.Images.Threshold,
		TuneCallbackURL: cfg.Webhook.TuneCallbackURL,
		StorageURL:      cfg.Images.StorageURL,
		TierPrices: map[string]string{
			"lite":     cfg.Tiers.LitePrice,
			"standard": cfg.Tiers.StandardPrice,
			"premium":  cfg.Tiers.PremiumPrice,
		},
	}, l)

	// Start webhook server
	httpServer := server.NewServer(cfg.Server.Port, cfg.WhatsApp.VerifyToken, cfg.WhatsApp.NumberID, dispatcher, database, l)
	go func() {
		l.Info("Starting HTTP server...")
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("Failed to start HTTP server", err)
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down bot...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		l.Error("Error during HTTP server shutdown", err)
	}

	l.Info("Bot stopped successfully")
}
