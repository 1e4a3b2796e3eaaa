package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"transcript-chat-service/internal/config"
	"transcript-chat-service/internal/events"
	"transcript-chat-service/internal/observability/logging"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/schema"
	"transcript-chat-service/internal/service/session"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Metrics   *metrics.Metrics
	Sessions  *session.Manager
	Publisher *events.Publisher
	Validator *schema.Validator

	pipeline *Pipeline
	ready    atomic.Bool
}

// New constructs the Application: logger, collaborators selected by cfg,
// the event publisher and the session registry.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:       cfg,
		Metrics:   metrics.DefaultMetrics,
		Validator: schema.New(),
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	p, err := BuildPipeline(ctx, cfg, a.Metrics)
	if err != nil {
		appLogger.Error().Err(err).Msg("Failed to build pipeline")
		return nil, err
	}
	a.pipeline = p

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicSession: cfg.Kafka.TopicSession,
		TopicAnswer:  cfg.Kafka.TopicAnswer,
		Principal:    cfg.Kafka.Principal,
	})
	a.Sessions = session.NewManager(p.Deps, p.Answerer, a.Publisher)

	appLogger.Info().
		Str("stt", cfg.STT.Provider).
		Str("index", cfg.Index.Provider).
		Str("qa", cfg.QA.Provider).
		Msg("Transcript chat service application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	format := a.Cfg.Observability.LogFormat
	if a.Cfg.Service.Env == "dev" {
		format = "console"
	}
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "transcript-chat-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)

	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Msg("Transcript chat service starting")
	return nil
}

// Ready reports whether Start has run and Shutdown has not.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown resets every session and releases the collaborators.
func (a *Application) Shutdown() error {
	a.ready.Store(false)
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()
	shutdownLogger.Info().Int("sessions", a.Sessions.Len()).Msg("Transcript chat service shutting down")

	a.Sessions.Close()
	errs := []error{a.Publisher.Close()}
	errs = append(errs, a.pipeline.Close())
	return errors.Join(errs...)
}
