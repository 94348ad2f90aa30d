package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/orchestrator/internal/alarm"
	"github.com/taskqueue/orchestrator/internal/api/handlers"
	apiMiddleware "github.com/taskqueue/orchestrator/internal/api/middleware"
	"github.com/taskqueue/orchestrator/internal/api/websocket"
	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/events"
	"github.com/taskqueue/orchestrator/internal/queuemanager"
	"github.com/taskqueue/orchestrator/internal/store"
)

// ShutdownFn triggers the emergency shutdown path from the HTTP layer.
// Callers that own no live workers or scheduler (short-lived CLI
// processes) should pass nil — Shutdown then responds 503 instead of
// reaching for a Controller that was never wired.
type ShutdownFn func(ctx context.Context, reason string)

// Server is the HTTP front end: submission/lookup routes under /api/v1,
// operator routes under /admin, a WebSocket event feed, and (when
// enabled) a Prometheus scrape endpoint.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
	publisher    *events.RedisPubSub
}

// NewServer wires the HTTP surface on top of an already-constructed
// queue manager, store, alarm engine, and Redis client. shutdownFn backs
// POST /system/shutdown; pass nil for read-only processes.
func NewServer(cfg *config.Config, manager *queuemanager.Manager, st *store.Store, alarms *alarm.Engine, redisClient *redis.Client, publisher *events.RedisPubSub, shutdownFn ShutdownFn) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		taskHandler:  handlers.NewTaskHandler(manager, st),
		adminHandler: handlers.NewAdminHandler(manager, st, alarms, redisClient, shutdownFn),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
		publisher:    publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.adminHandler.Health)
	s.router.Get("/health/quick", s.adminHandler.HealthQuick)
	s.router.Get("/health/components", s.adminHandler.HealthComponents)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		if s.config.Queue.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Queue.RateLimitRPS))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Get("/", s.taskHandler.List)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Delete("/{taskID}", s.taskHandler.Cancel)
		})
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(&apiMiddleware.AuthConfig{
			Enabled:   s.config.Auth.Enabled,
			JWTSecret: s.config.Auth.JWTSecret,
			APIKeys:   apiKeySet(s.config.Auth.APIKeys),
		}))

		r.Get("/status", s.adminHandler.SystemStatus)

		r.Get("/workers", s.adminHandler.ListWorkers)
		r.Get("/workers/{workerID}", s.adminHandler.GetWorker)
		r.Post("/workers/{workerID}/pause", s.adminHandler.PauseWorker)
		r.Post("/workers/{workerID}/resume", s.adminHandler.ResumeWorker)

		r.Get("/queues", s.adminHandler.GetQueues)

		r.Get("/dlq", s.adminHandler.ListDeadLetter)
		r.Post("/tasks/{taskID}/requeue", s.adminHandler.RequeueTask)

		r.Get("/alarms", s.adminHandler.ListAlarms)
		r.Post("/alarms/{alarmID}/acknowledge", s.adminHandler.AcknowledgeAlarm)
		r.Post("/alarms/{alarmID}/resolve", s.adminHandler.ResolveAlarm)
	})

	s.router.Route("/system", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(&apiMiddleware.AuthConfig{
			Enabled:   s.config.Auth.Enabled,
			JWTSecret: s.config.Auth.JWTSecret,
			APIKeys:   apiKeySet(s.config.Auth.APIKeys),
		}))
		r.Post("/shutdown", s.adminHandler.Shutdown)
	})

	s.router.Route("/test", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(&apiMiddleware.AuthConfig{
			Enabled:   s.config.Auth.Enabled,
			JWTSecret: s.config.Auth.JWTSecret,
			APIKeys:   apiKeySet(s.config.Auth.APIKeys),
		}))
		r.Post("/alarm", s.adminHandler.TestAlarm)
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}

func apiKeySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
