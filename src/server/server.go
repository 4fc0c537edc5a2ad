package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"trade-stream/src/logger"
	"trade-stream/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// PublisherControl is implemented by the publisher manager. The server only
// ever starts loops on subscribe and stops them when a key empties.
// -----------------------------------------------------------------------------

type PublisherControl interface {
	EnsureLoop(msg *models.MControlMessage, key string) error
	StopIfEmpty(channel, key string)
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	Registry   *SubscriberRegistry
	Manager    *ConnectionManager
	Publishers PublisherControl
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(cfg *models.MConfig, log *logger.Logger) *Server {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := NewSubscriberRegistry()

	s := &Server{
		Config:   cfg,
		Logger:   log,
		engine:   gin.Default(),
		Registry: registry,
		Manager:  NewConnectionManager(registry, log),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

// SetPublishers wires the publisher manager and its stop hook.
func (s *Server) SetPublishers(p PublisherControl) {
	s.Publishers = p
	s.Manager.SetEmptyKeyHandler(p.StopIfEmpty)
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/channels", s.getChannels)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	srv := &http.Server{Addr: addr, Handler: s.engine}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Broadcaster implementation (consumed by the publisher loops)
// -----------------------------------------------------------------------------

// Publish delivers one envelope to every current subscriber of (channel,
// key). All subscribers of a tick see the same snapshot.
func (s *Server) Publish(channel, key string, envelope *models.MEnvelope) int {
	subscribers := s.Registry.SubscribersOf(channel, key)
	for _, client := range subscribers {
		s.Manager.Send(client, envelope)
	}
	return len(subscribers)
}

// -----------------------------------------------------------------------------

// SubscriberCount reports the live subscriber count for (channel, key).
func (s *Server) SubscriberCount(channel, key string) int {
	return s.Registry.Count(channel, key)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":      "ok",
		"connections": s.Manager.ConnectionCount(),
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getChannels(c *gin.Context) {
	c.JSON(200, gin.H{
		"channels": models.Channels,
	})
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	userID := c.Query("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	client := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		server: s,
		conn:   conn,
		// Buffered channel so publishers never block on one consumer
		send: make(chan *models.MEnvelope, sendBufferSize),
	}

	s.Manager.Connect(client)

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
