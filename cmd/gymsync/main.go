// Command gymsync runs the offline sync worker: it drains the durable
// operation queue, keeps the read-through cache metrics, and optionally
// exposes them over loopback HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/cache"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/connectivity"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/messaging"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/metrics"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/queue"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for gymsync state data
	DefaultStateDir = "/var/lib/gymsync"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "offline_queue.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Config holds environment configuration
type Config struct {
	StateDir         string
	DBDSN            string
	WhatsAppDBDSN    string
	MessagingBackend string
	ProcessInterval  time.Duration
	BusyTimeout      time.Duration
	QuotaRatio       float64
	Adaptive         bool
	MetricsInterval  time.Duration
	MetricsHTTP      bool
	MetricsHTTPPort  int
}

// Flags holds command line flag values
type Flags struct {
	stateDir         *string
	dbDSN            *string
	waDSN            *string
	messagingBackend *string
	qrOutput         *string
	numeric          *bool
	metricsHTTP      *bool
	metricsHTTPPort  *int
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(&config)

	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "dir", *flags.stateDir)
		os.Exit(1)
	}

	slog.Info("Bootstrapping gymsync", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "")
	if err := run(config, flags); err != nil {
		slog.Error("gymsync failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("gymsync exited successfully")
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("GYMSYNC_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("GYMSYNC_STATE_DIR"),
		DBDSN:            os.Getenv("GYMSYNC_DB_DSN"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		MessagingBackend: os.Getenv("GYMSYNC_MESSAGING_BACKEND"),
		ProcessInterval:  util.ParseDurationEnv("GYMSYNC_PROCESS_INTERVAL", queue.DefaultProcessingInterval),
		BusyTimeout:      util.ParseDurationEnv("GYMSYNC_BUSY_TIMEOUT", store.DefaultBusyTimeout),
		QuotaRatio:       util.ParseFloatEnv("GYMSYNC_DB_QUOTA_RATIO", queue.DefaultQuotaRatio),
		Adaptive:         util.ParseBoolEnv("GYMSYNC_ADAPTIVE_INTERVAL", true),
		MetricsInterval:  util.ParseDurationEnv("GYMSYNC_METRICS_INTERVAL", metrics.DefaultSnapshotInterval),
		MetricsHTTP:      util.ParseBoolEnv("ENABLE_OFFLINE_METRICS_HTTP", false),
		MetricsHTTPPort:  util.ParseIntEnv("GYMSYNC_METRICS_HTTP_PORT", metrics.DefaultHTTPPort),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if config.MessagingBackend == "" {
		config.MessagingBackend = "whatsapp"
	}
	return config
}

// parseCommandLineFlags parses command line flags with environment defaults
func parseCommandLineFlags(config *Config) Flags {
	flags := Flags{
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for queue and session databases"),
		dbDSN:            flag.String("db-dsn", config.DBDSN, "queue database DSN (SQLite file path or postgres:// URL)"),
		waDSN:            flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow session database DSN"),
		messagingBackend: flag.String("messaging", config.MessagingBackend, "notification backend: whatsapp, twilio, or none"),
		qrOutput:         flag.String("qr-output", "", "write WhatsApp login QR code to this file instead of stdout"),
		numeric:          flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR"),
		metricsHTTP:      flag.Bool("metrics-http", config.MetricsHTTP, "enable the loopback metrics HTTP endpoint"),
		metricsHTTPPort:  flag.Int("metrics-http-port", config.MetricsHTTPPort, "metrics HTTP port"),
	}
	flag.Parse()
	return flags
}

func run(config Config, flags Flags) error {
	// Store backend is selected by DSN, as in the desktop app.
	var st store.Store
	var err error
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		st, err = store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	} else {
		st, err = store.NewSQLiteStore(store.WithDSN(*flags.dbDSN), store.WithBusyTimeout(config.BusyTimeout))
	}
	if err != nil {
		return err
	}
	defer st.Close()

	registry := queue.NewRegistry()
	probe := connectivity.NewTCPProbe()
	dispatcher := queue.NewDispatcher(st, registry, probe,
		queue.WithInterval(config.ProcessInterval),
		queue.WithQuotaRatio(config.QuotaRatio),
		queue.WithAdaptiveInterval(config.Adaptive),
	)

	// Notification collaborator.
	var svc messaging.Service
	switch *flags.messagingBackend {
	case "whatsapp":
		waOpts := []messaging.WhatsAppOption{messaging.WithWhatsAppDBDSN(*flags.waDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, messaging.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, messaging.WithNumericCode())
		}
		svc, err = messaging.NewWhatsAppService(waOpts...)
	case "twilio":
		svc, err = messaging.NewTwilioService()
	case "none":
		svc = nil
	default:
		slog.Warn("Unknown messaging backend, notifications disabled", "backend", *flags.messagingBackend)
	}
	if err != nil {
		return err
	}
	if svc != nil {
		defer svc.Stop()
		messaging.RegisterNotifyHandlers(registry, svc)
		dispatcher.AttachNotifier(svc)
	}

	// Metrics: counters, promoter, snapshot task, optional HTTP exposition.
	// Cache counters stay at zero in a standalone worker; the embedding
	// application shares its own engine when run in-process.
	counters := metrics.NewCacheCounters()
	critical := cache.NewCriticalSet(cache.DefaultCriticalReads)
	collector := metrics.NewCollector(st, probe, dispatcher, counters, critical)
	logsDir := filepath.Join(*flags.stateDir, "logs")
	task := metrics.NewSnapshotTask(collector, critical, logsDir, config.MetricsInterval)
	task.Start()
	defer task.Stop()

	if *flags.metricsHTTP {
		server := metrics.NewServer(collector, task.SnapshotPath(), *flags.metricsHTTPPort)
		server.Start()
		defer server.Stop()
	} else {
		slog.Info("Metrics HTTP endpoint disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Run(ctx)
	return nil
}
