// Package devserver is a self-contained chat backend: the REST endpoints
// and the STOMP broker the client talks to, backed by postgres or memory.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/config"
	"chat-client/internal/db"
	"chat-client/internal/handlers"
	"chat-client/internal/middleware"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/repositories"
	"chat-client/internal/telemetry"
	"chat-client/internal/ws"
)

const (
	serviceName     = "chat-devserver"
	auditRoutingKey = "audit.chat"
)

// Server wires storage, broker and HTTP routes together.
type Server struct {
	cfg       config.Server
	logger    *slog.Logger
	router    *gin.Engine
	hub       *ws.Hub
	database  *sqlx.DB
	publisher rabbitmq.Publisher
	http      *http.Server
}

// New builds a Server. Postgres is used when cfg.DBDSN is set; otherwise
// rooms live in memory and a lobby room is seeded for every known user.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger.With("component", serviceName)}

	var (
		rooms    repositories.RoomRepository
		messages repositories.MessageRepository
	)
	if cfg.DBDSN != "" {
		database, err := db.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		s.database = database
		rooms = repositories.NewRoomRepo(database)
		messages = repositories.NewMessageRepo(database)
	} else {
		mem := repositories.NewMemory()
		if err := seedLobby(ctx, mem, cfg.Tokens); err != nil {
			return nil, err
		}
		rooms, messages = mem, mem
		s.logger.Info("using in-memory storage")
	}

	s.publisher = rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(s.publisher)
	status := rabbitmq.StatusOf(s.publisher)
	s.logger.Info("event publisher ready", "mode", status.Mode, "reason", status.Reason)
	audit := telemetry.NewAuditEmitter(s.publisher, auditRoutingKey, serviceName, cfg.Environment, logger)

	s.hub = ws.NewHub(logger)
	auth := middleware.TokenTable(cfg.Tokens)
	chat := handlers.NewChatHandler(rooms, messages, s.hub, audit, logger)
	broker := ws.NewBrokerHandler(s.hub, rooms, auth, cfg.HeartBeat, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/ws", broker.Handle)
	chat.Register(router.Group("/", middleware.AuthMiddleware(auth)))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	s.router = router
	return s, nil
}

// Handler exposes the routes, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the broker hub.
func (s *Server) Hub() *ws.Hub { return s.hub }

// Start listens on the configured port in the background.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("devserver listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and releases storage and the publisher.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}

func seedLobby(ctx context.Context, repo repositories.RoomRepository, tokens map[string]models.User) error {
	members := make([]models.ID, 0, len(tokens))
	seen := map[models.ID]bool{}
	for _, u := range tokens {
		if !seen[u.ID] {
			seen[u.ID] = true
			members = append(members, u.ID)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	if _, err := repo.CreateRoom(ctx, repositories.NewRoom{Name: "Lobby", Members: members}); err != nil {
		return fmt.Errorf("seed lobby: %w", err)
	}
	return nil
}
