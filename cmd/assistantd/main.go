package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strivehq/assistant/internal/api"
	"github.com/strivehq/assistant/internal/assistant"
	"github.com/strivehq/assistant/internal/config"
	"github.com/strivehq/assistant/internal/llm"
	"github.com/strivehq/assistant/internal/observability"
	"github.com/strivehq/assistant/internal/plan"
	"github.com/strivehq/assistant/internal/version"
)

const defaultConfigPath = "assistant.yaml"
const serviceName = "strive-assistant"

const otelShutdownTimeout = 5 * time.Second
const serverReadHeaderTimeout = 10 * time.Second
const serverReadTimeout = 30 * time.Second
const serverIdleTimeout = 2 * time.Minute
const serverShutdownTimeout = 5 * time.Second

var signalNotifyContext = signal.NotifyContext

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		return runServe(nil)
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "serve":
		return runServe(args[1:])
	case "config":
		return runConfig(args[1:], os.Stdout, os.Stderr)
	default:
		printUsage(os.Stderr)
		return 2
	}
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printConfigUsage(errOut)
		return 2
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], out, errOut)
	default:
		printConfigUsage(errOut)
		return 2
	}
}

func runConfigValidate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("config validate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}

	_, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		}
		return 1
	}

	fmt.Fprintf(out, "config %q is valid\n", *configPath)
	return 0
}

type configStage string

const (
	configStageLoad     configStage = "load"
	configStageValidate configStage = "validate"
)

func loadAndValidateConfig(path string) (config.Config, configStage, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, configStageLoad, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, configStageValidate, err
	}
	return cfg, "", nil
}

func runServe(args []string) int {
	flagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "config is invalid: %v\n", err)
		}
		return 1
	}

	logger := slog.New(observability.NewTraceLogHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
	))

	otelRuntime, otelErr := observability.Setup(context.Background(), cfg.Observability.OTel, version.String(), logger)
	if otelErr != nil {
		logger.Error("failed to initialize opentelemetry; continuing with instrumentation disabled", "error", otelErr)
	}
	if otelRuntime != nil {
		defer shutdownOpenTelemetry(logger, otelRuntime)
	}

	planStore, err := newPlanStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage: %v\n", err)
		return 1
	}
	defer func() {
		if err := planStore.Close(); err != nil {
			logger.Error("failed to close plan store", "error", err)
		}
	}()

	client, err := llm.New(cfg.Provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize llm provider: %v\n", err)
		return 1
	}

	service := assistant.New(client, planStore, otelRuntime, cfg.Provider, logger)
	apiHandler := api.NewRouter(api.RouterOptions{
		AppVersion:  version.String(),
		ServiceName: serviceName,
		Service:     service,
	})

	serverHandler := api.LoggingMiddleware(logger, apiHandler)
	if otelRuntime != nil {
		serverHandler = otelRuntime.WrapHTTPHandler(serverHandler)
	}
	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           serverHandler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	logger.Info(
		"startup banner",
		"version", version.String(),
		"addr", server.Addr,
		"port", cfg.Server.Port,
		"storage_driver", cfg.Storage.Driver,
		"provider", cfg.Provider.Kind,
		"model", cfg.Provider.Model,
		"streaming", cfg.Provider.Streaming,
		"config_path", *configPath,
	)

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown", "error", err)
			return 1
		}
		logger.Info("assistant stopped")
		return 0
	case err := <-errCh:
		if err != nil {
			logger.Error("assistant failed", "error", err)
			return 1
		}
		return 0
	}
}

func newPlanStore(cfg config.Config) (plan.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return plan.NewMemoryStore(), nil
	case "sqlite":
		return plan.NewSQLiteStore(cfg.Storage.Path)
	case "postgres":
		return plan.NewPostgresStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage.driver %q", cfg.Storage.Driver)
	}
}

func shutdownOpenTelemetry(logger *slog.Logger, runtime *observability.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer cancel()
	if err := runtime.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown opentelemetry", "error", err)
	}
}

func printUsage(out *os.File) {
	fmt.Fprintln(out, "usage: assistantd [serve|config validate|version]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  serve            start the HTTP server (default)")
	fmt.Fprintln(out, "  config validate  load and validate the config file")
	fmt.Fprintln(out, "  version          print the build version")
}

func printConfigUsage(errOut io.Writer) {
	fmt.Fprintln(errOut, "usage: assistantd config validate [-config path]")
}
