package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cadlive/livemap/internal/aggregator"
	"github.com/cadlive/livemap/internal/catalogue"
	"github.com/cadlive/livemap/internal/config"
	"github.com/cadlive/livemap/internal/dispatcher"
	"github.com/cadlive/livemap/internal/engine"
	"github.com/cadlive/livemap/internal/httpapi"
	"github.com/cadlive/livemap/internal/identity"
	"github.com/cadlive/livemap/internal/influx"
	"github.com/cadlive/livemap/internal/logging"
	"github.com/cadlive/livemap/internal/lookup"
	"github.com/cadlive/livemap/internal/monitor"
	intOtel "github.com/cadlive/livemap/internal/otel"
	"github.com/cadlive/livemap/internal/projection"
	"github.com/cadlive/livemap/internal/registry"
	"github.com/cadlive/livemap/internal/signage"
	"github.com/cadlive/livemap/internal/supervisor"
	"github.com/cadlive/livemap/internal/transport"
	"github.com/cadlive/livemap/pkg/core"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "livemap-engine"
)

var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	logFile *os.File
)

// setupLogging loads config and rebuilds the slog manager with file,
// GELF and OTel outputs as configured. It is called once at startup
// after the bootstrap stdout-only logger has reported config errors.
func setupLogging() error {
	logsDir := config.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("creating logs dir: %w", err)
		}
	}

	logFilePath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logFilePath, err)
	}

	var gelf io.Writer
	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGelfWriter(config.GetString("graylog.address"))
		if err != nil {
			Logger.Warn("Failed to connect GELF writer", "error", err,
				"address", config.GetString("graylog.address"))
		} else {
			gelf = w
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logFile, config.GetString("logLevel"), otelLogProvider, gelf)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logFilePath)
	return nil
}

func main() {
	configDir := flag.String("config", ".", "directory containing livemap.cfg.json")
	flag.Parse()

	// bootstrap logger to stdout until config is loaded
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil, nil)
	Logger = SlogManager.Logger()
	Logger.Info("Starting up...", "version", Version, "build", BuildDate)

	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", *configDir)
	}

	if err := setupLogging(); err != nil {
		Logger.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("app", AppName).Logger()

	// metrics sink, optional
	var influxManager *influx.Manager
	if config.GetBool("influx.enabled") {
		backupPath := filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("%s_metrics_%s.gz", AppName, SessionStartTime.Format("20060102_150405")))
		influxManager = influx.NewManager(zlog, backupPath)
		if err := influxManager.Connect(); err != nil {
			Logger.Warn("InfluxDB unavailable, metrics will be backed up locally", "error", err)
		}
	}

	// identity collaborator (CAD API or direct Postgres)
	lk, err := lookup.New(zlog)
	if err != nil {
		Logger.Error("Failed to create lookup backend", "error", err)
		os.Exit(1)
	}
	defer lk.Close()

	// static map furniture from the catalogue database
	furniture, err := catalogue.Load(config.GetString("catalogue.path"))
	if err != nil {
		Logger.Warn("Failed to load marker catalogue, map furniture will be empty",
			"error", err, "path", config.GetString("catalogue.path"))
	} else {
		Logger.Info("Loaded marker catalogue", "markers", len(furniture))
	}

	projector, err := projection.New(config.Projection())
	if err != nil {
		Logger.Error("Invalid projection configuration", "error", err)
		os.Exit(1)
	}

	playerRegistry := registry.New()
	resolver := identity.NewResolver(lk, identity.Config{
		LookupTimeout: time.Duration(config.GetInt("lookup.timeoutSeconds")) * time.Second,
		RatePerSecond: float64(config.GetInt("lookup.ratePerSecond")),
		RateBurst:     config.GetInt("lookup.rateBurst"),
	}, Logger)
	signs := signage.New(
		time.Duration(config.GetInt("signage.confirmTimeoutSeconds"))*time.Second, Logger)
	agg := aggregator.New(projector, playerRegistry, signs, furniture)

	eng := engine.New(playerRegistry, resolver, signs, agg, Logger)

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		Logger.Error("Failed to create dispatcher", "error", err)
		os.Exit(1)
	}
	eng.RegisterHandlers(eventDispatcher)

	sup := supervisor.New(supervisor.Config{
		Endpoints:     config.GetStringSlice("telemetry.endpoints"),
		RequireSecure: config.GetBool("telemetry.requireSecure"),
		Secret:        config.GetString("telemetry.secret"),
	}, func() supervisor.Channel {
		return transport.New(transport.Config{
			ReconnectAttempts: config.GetInt("telemetry.reconnectAttempts"),
		}, eventDispatcher, Logger)
	}, Logger)
	sup.OnFlush(eng.Flush)
	sup.OnStatus(func(st supervisor.Status) {
		Logger.Info("Connection state changed",
			"state", st.State, "endpoint", st.Endpoint, "error", st.LastErr)
	})
	eng.SetSender(sup)

	// tag every log record with the live connection state
	SlogManager.ContextAttrs = func() []slog.Attr {
		st := sup.Status()
		return []slog.Attr{
			slog.String("connState", string(st.State)),
			slog.String("endpoint", st.Endpoint),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	// connect to the first configured endpoint, if any; operators can
	// also drive selection through the HTTP API at runtime
	if endpoints := config.GetStringSlice("telemetry.endpoints"); len(endpoints) > 0 {
		if err := sup.SelectEndpoint(endpoints[0]); err != nil {
			Logger.Error("Failed to select endpoint", "error", err, "endpoint", endpoints[0])
		} else if err := sup.Connect(); err != nil {
			Logger.Error("Initial connect failed", "error", err, "endpoint", endpoints[0])
		}
	} else {
		Logger.Info("No telemetry endpoints configured, waiting for selection via API")
	}

	monitorService := monitor.NewService(monitor.Dependencies{
		LogManager: SlogManager,
		Engine:     eng,
		Supervisor: sup,
		Influx:     influxManager,
		StatusDir:  config.GetString("logsDir"),
		Interval:   time.Duration(config.GetInt("monitor.intervalSeconds")) * time.Second,
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	}

	apiServer := httpapi.New(eng, sup, Logger)
	httpServer := &http.Server{
		Addr:    config.GetString("http.listen"),
		Handler: apiServer.Router(),
	}
	go func() {
		Logger.Info("HTTP API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Logger.Error("HTTP server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	Logger.Info("Shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("HTTP shutdown did not complete cleanly", "error", err)
	}
	monitorService.Stop()
	eng.Stop()
	sup.Disconnect()
	if st := sup.Status(); st.State != core.StateDisconnected {
		Logger.Warn("Supervisor did not reach disconnected state", "state", st.State)
	}
	if err := SlogManager.Flush(shutdownCtx); err != nil {
		Logger.Warn("Failed to flush log pipeline", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(shutdownCtx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if logFile != nil {
		logFile.Close()
	}
	Logger.Info("Shutdown complete")
}
