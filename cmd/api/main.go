package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/letsdeepchat/MedAppAuto/internal/api/router"
	"github.com/letsdeepchat/MedAppAuto/internal/assistant"
	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	appconfig "github.com/letsdeepchat/MedAppAuto/internal/config"
	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
	"github.com/letsdeepchat/MedAppAuto/internal/http/handlers"
	"github.com/letsdeepchat/MedAppAuto/internal/knowledge"
	"github.com/letsdeepchat/MedAppAuto/internal/notify"
	"github.com/letsdeepchat/MedAppAuto/internal/observability/metrics"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/internal/session"
	"github.com/letsdeepchat/MedAppAuto/internal/webchat"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"storage", cfg.StorageBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := clinicdata.Load(cfg.DataDir)
	if err != nil {
		logger.Error("failed to load clinic dataset", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	logger.Info("clinic dataset loaded",
		"clinic", data.Clinic.Name,
		"doctors", len(data.Doctors),
		"appointment_types", len(data.Types),
	)

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)
	convMetrics := metrics.NewConversationMetrics(registry)

	store, cleanup, err := newAppointmentStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize appointment store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Notifications run off the booking path; engine events feed them.
	email := newEmailSender(cfg, logger)
	dispatcher := notify.NewDispatcher(email, notify.NewMemoryCalendar(logger),
		notify.DispatcherConfig{ClinicName: data.Clinic.Name}, logger)
	go dispatcher.Run(ctx)
	defer dispatcher.Close()

	engine := availability.NewEngine(data, store, logger,
		availability.WithBuffer(time.Duration(cfg.BufferMinutes)*time.Minute),
		availability.WithPageSize(cfg.SlotPageSize),
		availability.WithHorizon(time.Duration(cfg.SearchHorizonDays)*24*time.Hour),
		availability.WithFeeDefaults(availability.FeeDefaults{
			CutoffHours:    cfg.CancelCutoffHours,
			LateFeeCents:   cfg.LateCancelFeeCents,
			NoShowFeeCents: cfg.NoShowFeeCents,
		}),
		availability.WithEventSink(dispatcher),
		availability.WithMetrics(bookingMetrics),
	)

	kb := newKnowledgeBase(ctx, cfg, data, convMetrics, logger)

	machineOpts := []dialogue.MachineOption{
		dialogue.WithMaxRetries(cfg.MaxRetries),
		dialogue.WithOptionsTTL(cfg.OptionsCacheTTL),
		dialogue.WithMetrics(convMetrics),
	}
	if cfg.GeminiAPIKey != "" {
		llm, err := dialogue.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini intent classifier unavailable, using keyword classifier", "error", err)
		} else {
			defer func() { _ = llm.Close() }()
			machineOpts = append(machineOpts, dialogue.WithClassifier(dialogue.NewLLMIntentClassifier(llm)))
			logger.Info("gemini intent classifier enabled", "model", cfg.GeminiModelID)
		}
	}
	machine := dialogue.NewMachine(data, engine, kb, logger, machineOpts...)

	sessions := session.NewRegistry(logger,
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithHistoryLimit(cfg.HistoryLimit),
		session.WithMetrics(convMetrics),
	)
	go sessions.Run(ctx, cfg.EvictionInterval)

	svc := assistant.NewService(logger, machine, sessions, engine, kb)

	r := router.New(&router.Config{
		Logger:             logger,
		Chat:               handlers.NewChatHandler(svc, logger),
		Appointments:       handlers.NewAppointmentsHandler(svc, logger),
		WebchatHandler:     webchat.NewHandler(svc, nil, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRatePerSecond:  cfg.ChatRatePerSecond,
		ChatBurst:          cfg.ChatBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newAppointmentStore picks the configured backend. The returned cleanup
// closes any connection pool.
func newAppointmentStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (schedule.AppointmentStore, func(), error) {
	switch cfg.StorageBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres appointment store")
		return schedule.NewPostgresStore(pool), pool.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("using redis appointment store", "addr", cfg.RedisAddr)
		return schedule.NewRedisStore(client), func() { _ = client.Close() }, nil

	default:
		logger.Info("using in-memory appointment store")
		return schedule.NewMemoryStore(), func() {}, nil
	}
}

func newEmailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		logger.Info("sendgrid email sender enabled", "from", cfg.SendGridFromEmail)
		return sender
	}
	return notify.NewStubEmailSender(logger)
}

func newKnowledgeBase(ctx context.Context, cfg *appconfig.Config, data *clinicdata.Dataset, convMetrics *metrics.ConversationMetrics, logger *logging.Logger) *knowledge.Base {
	opts := []knowledge.BaseOption{
		knowledge.WithKeywordThreshold(cfg.MinConfidence),
		knowledge.WithSemanticThreshold(cfg.SemanticThreshold),
		knowledge.WithMetrics(convMetrics),
	}
	if cfg.GeminiAPIKey != "" {
		embedder, err := knowledge.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModelID)
		if err != nil {
			logger.Warn("gemini embedder unavailable, keyword matching only", "error", err)
		} else {
			opts = append(opts, knowledge.WithEmbedder(embedder))
			logger.Info("semantic FAQ retrieval enabled", "model", cfg.GeminiEmbeddingModelID)
		}
	}

	kb := knowledge.NewBase(logger, opts...)
	if err := kb.Add(ctx, knowledge.DeriveEntries(data)); err != nil {
		logger.Warn("knowledge base indexing degraded", "error", err)
	}
	return kb
}
