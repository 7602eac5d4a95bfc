package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/auth"
	"github.com/tasktrack/apiserver/internal/db"
	"github.com/tasktrack/apiserver/internal/handlers"
	"github.com/tasktrack/apiserver/internal/logger"
	"github.com/tasktrack/apiserver/internal/mq"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/storage"
	"github.com/tasktrack/apiserver/internal/store"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	mq         *mq.MQ
	logger     *slog.Logger
}

// Deps are the collaborators the router is assembled from.
type Deps struct {
	Users       *services.UserService
	Tasks       *services.TaskService
	Attachments *services.AttachmentService
	Tokens      *auth.TokenIssuer
	DB          handlers.Pinger
	CORSOrigins []string
	Logger      *slog.Logger
}

// New connects to the configured backends and builds a Server.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)
	attachmentRepo := store.NewAttachmentRepository(dbConn)

	var objects services.ObjectStore
	objectStorage, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if objectStorage != nil {
		objects = objectStorage
		log.Info("attachments enabled", slog.String("backend", cfg.Storage.Backend), slog.String("bucket", objectStorage.Bucket()))
	}

	var events services.EventPublisher
	broker, err := mq.Connect(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if broker != nil {
		events = mq.NewTaskEventPublisher(broker, cfg.MQ.TaskEventsChannel)
		log.Info("task events enabled", slog.String("backend", cfg.MQ.Backend), slog.String("channel", cfg.MQ.TaskEventsChannel))
	}

	userService := services.NewUserService(userRepo)
	attachmentService := services.NewAttachmentService(taskRepo, attachmentRepo, objects, cfg.Storage.MaxAttachmentBytes, log)
	taskService := services.NewTaskService(taskRepo, attachmentService, events, log)

	router := NewRouter(Deps{
		Users:       userService,
		Tasks:       taskService,
		Attachments: attachmentService,
		Tokens:      tokens,
		DB:          dbConn,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		mq:         broker,
		logger:     log,
	}, nil
}

// NewRouter assembles the HTTP routes and middleware.
func NewRouter(deps Deps) *chi.Mux {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logger.RequestLogger(log),
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
		middleware.StripSlashes,
	)
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition", "WWW-Authenticate"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	authMiddleware := handlers.RequireAuth(deps.Tokens, deps.Users, log)

	router.Get("/healthz", handlers.Healthz(deps.DB))
	handlers.AuthRouter(router, deps.Users, deps.Tokens, log)
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, deps.Tasks, deps.Attachments, authMiddleware, log)
	})

	return router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases backend connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if closeErr := s.mq.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close mq: %w", closeErr))
		}
	}
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
		}
	}
	return err
}
