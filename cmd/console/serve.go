package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/backend"
	"github.com/capitalize-ai/chat-console/internal/commit"
	"github.com/capitalize-ai/chat-console/internal/config"
	"github.com/capitalize-ai/chat-console/internal/handler"
	"github.com/capitalize-ai/chat-console/internal/middleware"
	natsclient "github.com/capitalize-ai/chat-console/internal/nats"
	"github.com/capitalize-ai/chat-console/internal/notify"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/internal/session"
	"github.com/capitalize-ai/chat-console/internal/store"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/tracing"
)

// serve runs the console gateway until SIGINT or SIGTERM.
func serve(cfg *config.Config) error {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat console", zap.String("backend_url", cfg.BackendURL))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-console", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	backendClient := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	}, log)

	hub := handler.NewHub(log)

	// The event bus is optional; the console works without it.
	var (
		publisher *natsclient.Publisher
		busStatus handler.ConnChecker
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		if err := natsclient.EnsureStream(ctx, natsClient.JetStream()); err != nil {
			return err
		}

		publisher = natsclient.NewPublisher(natsClient.JetStream(), log)
		defer publisher.Wait()
		busStatus = natsClient
	}

	opener := service.NewStreamOpener(backendClient, &http.Client{})

	// Every authenticated email gets its own conversation, stream session
	// and event feed.
	workspaces := service.NewWorkspaces(func(email string) *service.ChatService {
		userLog := log.With(zap.String("email", email))
		feed := hub.For(email)

		notifiers := notify.Multi{notify.Log{Logger: userLog}, feed}
		opts := session.Options{
			IdleTimeout: cfg.StreamIdleTimeout,
			Display:     feed,
		}
		if publisher != nil {
			notifiers = append(notifiers, publisher)
			opts.Recorder = publisher
		}
		opts.Notifier = notifiers

		conversations := store.NewConversationStore()
		conversations.Reset(email)
		chats := store.NewChatList()
		pipeline := commit.NewPipeline(backendClient, conversations, chats, notifiers, userLog)

		controller := session.NewController(opener, pipeline, userLog, opts)
		controller.Signal().Subscribe(feed.Generating)
		conversations.Subscribe(feed.Appended)

		return service.NewChatService(
			service.Config{Owner: email, DefaultModel: cfg.DefaultModel, Models: cfg.Models},
			backendClient,
			pipeline,
			controller,
			conversations,
			chats,
			notifiers,
			userLog,
		)
	})
	resolve := func(email string) handler.ChatService { return workspaces.For(email) }

	healthHandler := handler.NewHealthHandler(backendClient, busStatus)
	conversationHandler := handler.NewConversationHandler(resolve, log)
	messageHandler := handler.NewMessageHandler(resolve, log)
	eventsHandler := handler.NewEventsHandler(hub, resolve, 30*time.Second, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/conversation", conversationHandler.Get)
		r.Post("/conversation/new", conversationHandler.New)
		r.Put("/conversation/{id}", conversationHandler.Switch)
		r.Delete("/conversation/{id}", conversationHandler.Delete)
		r.Get("/chats", conversationHandler.Chats)

		r.Post("/messages", messageHandler.Submit)
		r.Post("/cancel", messageHandler.Cancel)
		r.Get("/models", messageHandler.Models)
		r.Post("/model", messageHandler.ChangeModel)

		r.Get("/events", eventsHandler.Events)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Event feeds never go idle; end them when shutdown begins.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	server.RegisterOnShutdown(cancelBase)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	// Commit whatever is still streaming before the process exits.
	if n := workspaces.StopAll(); n > 0 {
		log.Info("cancelled running generations", zap.Int("count", n))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
