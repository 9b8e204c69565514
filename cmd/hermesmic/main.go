// Command hermesmic streams a local microphone to a Hermes MQTT broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/hermesmic/internal/app"
	"github.com/MrWong99/hermesmic/internal/config"
	"github.com/MrWong99/hermesmic/internal/observe"
	"github.com/MrWong99/hermesmic/internal/resilience"
	"github.com/MrWong99/hermesmic/pkg/provider/vad"
	"github.com/MrWong99/hermesmic/pkg/provider/vad/energy"
	"github.com/MrWong99/hermesmic/pkg/provider/vad/webrtc"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with HERMESMIC_* secrets")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "hermesmic: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hermesmic: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hermesmic: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("hermesmic starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "hermesmic",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── VAD engine ────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinVAD(reg)
	engine, err := buildVAD(cfg, reg)
	if err != nil {
		slog.Error("failed to build vad engine", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.WithVAD(engine))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("microphone ready, press Ctrl+C to shut down", "site_id", cfg.OutputSiteID())

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// registerBuiltinVAD wires the classifiers that ship with hermesmic into reg.
func registerBuiltinVAD(reg *config.Registry) {
	reg.RegisterVAD("webrtc", func(config.SummaryConfig) (vad.Engine, error) {
		return webrtc.New(), nil
	})
	reg.RegisterVAD("energy", func(config.SummaryConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
	for _, name := range reg.VADNames() {
		slog.Debug("registered vad engine", "name", name)
	}
}

// buildVAD creates the configured engine. Unless the energy classifier was
// chosen, it is added as a fallback for hosts where the configured engine
// cannot open a session.
func buildVAD(cfg *config.Config, reg *config.Registry) (vad.Engine, error) {
	name := cfg.Summary.VAD
	primary, err := reg.CreateVAD(cfg.Summary)
	if err != nil {
		return nil, fmt.Errorf("create vad engine %q: %w", name, err)
	}
	if name == "energy" {
		return primary, nil
	}
	fb := resilience.NewVADFallback(primary, name, resilience.FallbackConfig{})
	fb.AddFallback("energy", energy.New())
	slog.Info("vad engine created", "name", name, "fallback", "energy")
	return fb, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
