package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voicelog"
	"voicelog/apply"
	"voicelog/notify"
	"voicelog/planner/ollama"
	"voicelog/resolve"
	"voicelog/store"
	"voicelog/turn"
	"voicelog/voice"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var modelConfig voicelog.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var plannerConfig voicelog.PlannerConfig
	if err := envdecode.Decode(&plannerConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var sessionConfig voicelog.SessionConfig
	if err := envdecode.Decode(&sessionConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var resolverConfig voicelog.ResolverConfig
	if err := envdecode.Decode(&resolverConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var storeConfig voicelog.StoreConfig
	if err := envdecode.Decode(&storeConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var notifierConfig voicelog.NotifierConfig
	if err := envdecode.Decode(&notifierConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	stores := store.NewFileStores(storeConfig.EntriesDir)
	slog.Info("SETUP: File-backed entry stores ready", "dir", storeConfig.EntriesDir)

	logger, cleanup, err := newTurnLogger(modelConfig.ModelID)
	if err != nil {
		slog.Error("SETUP: Failed to create turn logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("SETUP: Failed to flush turn log", "error", err)
		}
	}()

	planner, err := ollama.NewClient(ollama.ClientOpts{
		BaseEndpoint: plannerConfig.BaseOllamaEndpoint,
		ModelID:      modelConfig.ModelID,
		HistoryLimit: plannerConfig.HistoryLimit,
		HTTPClient:   http.DefaultClient,
	})
	if err != nil {
		slog.Error("SETUP: Failed to create planner client", "error", err)
		return
	}

	foods, err := resolve.NewFDCClient(resolve.FDCClientOpts{
		BaseEndpoint: resolverConfig.BaseEndpoint,
		APIKey:       resolverConfig.APIKey,
		HTTPClient:   http.DefaultClient,
	})
	if err != nil {
		slog.Error("SETUP: Failed to create food source", "error", err)
		return
	}

	resolver := resolve.NewResolver(foods, resolverConfig)
	pool := resolve.NewPool(resolver, resolverConfig.PoolWorkers)

	tracerProvider, meterProvider, otelShutdown, err := voicelog.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	tracer := tracerProvider.Tracer(voicelog.TracerNameTurn)
	meter := meterProvider.Meter(voicelog.TracerNameTurn)

	ctx, span := tracer.Start(ctx, "voice-session", trace.WithAttributes(
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Int("session.silence_threshold_ms", sessionConfig.SilenceThresholdMS),
		attribute.Bool("session.hands_free", sessionConfig.HandsFree),
	))
	defer span.End()

	notifier, closeNotifier := newNotifier(notifierConfig)
	defer closeNotifier()

	coordinator := turn.NewInstrumentedCoordinator(planner, pool, logger, tracer, meter)
	engine := apply.NewInstrumentedEngine(apply.NewEngine(stores), tracer, meter)

	session, err := voice.NewSession(voice.SessionOpts{
		Speaker:     voice.NewConsoleSpeaker(os.Stdout),
		Input:       voice.NewLineInput(os.Stdin),
		Coordinator: coordinator,
		Engine:      engine,
		Classifier:  planner,
		Pool:        pool,
		Notifier:    notifier,
		Channel:     notifierConfig.SlackChannel,
		Config:      sessionConfig,
	})
	if err != nil {
		slog.Error("SETUP: Failed to create session", "error", err)
		return
	}

	slog.Info("SESSION: Listening; type an utterance and press enter", "model", modelConfig.ModelID)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("FAILURE: Session ended with error", "error", err)
	}
}

// newNotifier returns the real Slack client when a webhook is configured and
// a local stand-in server otherwise, so receipts are visible either way.
func newNotifier(cfg voicelog.NotifierConfig) (voicelog.Notifier, func()) {
	if cfg.SlackWebhookURL != "" {
		return notify.NewSlackClient(cfg.SlackWebhookURL, http.DefaultClient), func() {}
	}

	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body) // nolint: errcheck
		slog.Info("NOTIFY: Receipt posted", "body", body.String())
		w.WriteHeader(http.StatusOK)
	}))
	return notify.NewSlackClient(testServer.URL, http.DefaultClient), testServer.Close
}

func newTurnLogger(modelID string) (voicelog.TurnLogger, func() error, error) {
	logFilePath := voicelog.NewTurnLogFilePath(modelID)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := voicelog.NewFileTurnLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
