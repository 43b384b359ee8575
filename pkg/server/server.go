// Package server exposes the voice engine over HTTP: the WebSocket
// endpoint clients stream audio through, plus health and stats routes.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/sonara-ai/go-sonara/pkg/protocol"
	"github.com/sonara-ai/go-sonara/pkg/session"
)

// Server hosts the voice WebSocket endpoint and the management API.
type Server struct {
	app      *fiber.App
	addr     string
	registry *session.Registry
	sessCfg  session.Config
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server. sessCfg is the template for every accepted
// session; the per-connection sender and teardown hooks are added here.
func New(addr string, sessCfg session.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:     addr,
		registry: session.NewRegistry(logger),
		sessCfg:  sessCfg,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "sonara",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Post("/reset", s.handleReset)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/voice", websocket.New(s.handleVoice))

	s.app = app
	return s
}

// Registry exposes the live session registry.
func (s *Server) Registry() *session.Registry { return s.registry }

// App returns the underlying fiber app, used by route tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving HTTP on the configured address.
func (s *Server) Listen() error {
	s.log.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting connections and tears down live sessions.
func (s *Server) Shutdown() error {
	s.cancel()
	s.registry.StopAll()
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.registry.Snapshot())
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	n := s.registry.ResetAll()
	return c.JSON(fiber.Map{"reset": n})
}

// wsSender serializes writes to one WebSocket connection. Fiber's conn
// is not safe for concurrent writers.
type wsSender struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	registry *session.Registry
}

func (w *wsSender) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.registry.CountMessageOut()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// handleVoice runs one client connection: it registers a session, pumps
// inbound frames into it, and closes the socket when the session dies.
func (s *Server) handleVoice(c *websocket.Conn) {
	sender := &wsSender{conn: c, registry: s.registry}

	cfg := s.sessCfg
	cfg.Logger = s.log
	cfg.OnTeardown = func(*session.Session) {
		// Reaped or stopped sessions drop the transport too.
		_ = c.Close()
	}

	sess := s.registry.NewSession(s.ctx, cfg, sender)
	defer sess.Stop()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.log.Debug("client disconnected", "session_id", sess.ID(), "err", err)
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			s.log.Warn("malformed message dropped", "session_id", sess.ID(), "err", err)
			continue
		}

		s.registry.CountMessageIn(msg.Type == protocol.TypeAudioChunk)
		sess.Deliver(msg)
	}
}
