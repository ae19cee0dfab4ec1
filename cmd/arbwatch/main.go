package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vdogroup/arbwatch/internal/alerts"
	"github.com/vdogroup/arbwatch/internal/config"
	"github.com/vdogroup/arbwatch/internal/dashboard"
	"github.com/vdogroup/arbwatch/internal/dedup"
	"github.com/vdogroup/arbwatch/internal/keypool"
	"github.com/vdogroup/arbwatch/internal/metrics"
	"github.com/vdogroup/arbwatch/internal/oddsapi"
	"github.com/vdogroup/arbwatch/internal/scanner"
	"github.com/vdogroup/arbwatch/internal/storage"
)

func main() {
	mode := flag.String("mode", "scan", "run mode: scan or dashboard")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logLevel())

	log.WithField("mode", *mode).Info("Starting arbwatch service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"environment":    cfg.Environment,
		"scan_interval":  cfg.ScanInterval,
		"base_stake":     cfg.BaseStake,
		"min_profit_pct": cfg.MinProfitPct,
		"alert_mode":     cfg.AlertMode,
	}).Info("Configuration loaded")

	// Initialize database
	db, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Run auto-migration
	if err := db.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}

	log.Info("Database migrations complete")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	switch *mode {
	case "scan":
		runScanner(ctx, cfg, db, log)
	case "dashboard":
		srv := dashboard.New(db, cfg.DashboardPort, log)
		if err := srv.Run(ctx); err != nil {
			log.WithError(err).Fatal("Dashboard server failed")
		}
	default:
		log.WithField("mode", *mode).Fatal("Unknown mode (valid: scan, dashboard)")
	}

	log.Info("Graceful shutdown complete")
}

func runScanner(ctx context.Context, cfg *config.Config, db *storage.DB, log *logrus.Logger) {
	// Load the credential pool
	creds, err := keypool.LoadFile(cfg.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load credentials file")
	}
	if len(creds) == 0 {
		log.WithField("file", cfg.CredentialsFile).Fatal("Credentials file contains no usable credentials")
	}
	pool := keypool.New(creds, cfg.CredentialInitialQuota, cfg.QuotaCooldown, log)

	log.WithField("credentials", pool.Len()).Info("Credential pool loaded")

	// Resolve the sport catalog
	catalog := config.FilterCatalog(config.DefaultCatalog(), cfg.SportKeys)
	if len(catalog) == 0 {
		log.Fatal("Sport catalog is empty after filtering, nothing to scan")
	}

	// Initialize collaborators
	client := oddsapi.NewClient(cfg)
	deduper := dedup.New(cfg.DedupWindow)
	alertSender := createAlertSender(cfg, log)

	log.WithField("alert_mode", cfg.AlertMode).Info("Alert sender initialized")

	sc := scanner.New(cfg, catalog, pool, client, db, deduper, alertSender, log)

	// Start HTTP server (health + metrics)
	go startHTTPServer(cfg.HealthPort, sc, log)

	if err := sc.Run(ctx); err != nil {
		log.WithError(err).Fatal("Scanner failed")
	}
}

func createAlertSender(cfg *config.Config, log *logrus.Logger) alerts.Sender {
	modes := strings.Split(cfg.AlertMode, ",")

	var senders []alerts.Sender
	for _, mode := range modes {
		switch strings.TrimSpace(mode) {
		case "log":
			senders = append(senders, alerts.NewLogSender(log))
		case "telegram":
			sender, err := alerts.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
			if err != nil {
				log.WithError(err).Fatal("Failed to initialize Telegram sender")
			}
			senders = append(senders, sender)
		case "discord":
			senders = append(senders, alerts.NewDiscordSender(cfg.DiscordWebhookURL))
		default:
			log.WithField("mode", mode).Warn("Unknown alert mode, skipping")
		}
	}

	if len(senders) == 0 {
		log.Warn("No valid alert senders configured, using log")
		return alerts.NewLogSender(log)
	}
	if len(senders) == 1 {
		return senders[0]
	}
	return alerts.NewMultiSender(senders...)
}

func startHTTPServer(port int, sc *scanner.Scanner, log *logrus.Logger) {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","state":"%s"}`, sc.State())
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready"}`)
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.WithField("port", port).Info("Starting HTTP server (health + metrics)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("HTTP server failed")
	}
}

func logLevel() logrus.Level {
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if level, err := logrus.ParseLevel(raw); err == nil {
			return level
		}
	}
	return logrus.InfoLevel
}
