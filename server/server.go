package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/mrsingh-rishi/voicechat/clips"
	"github.com/mrsingh-rishi/voicechat/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed static
var static embed.FS

// Server serves the widget page, its channel and the recorded clips.
type Server struct {
	App   *fiber.App
	clips *clips.Store
	deps  widget.Deps

	mu       sync.Mutex
	sessions map[string]*widget.Session
}

func New(deps widget.Deps, store *clips.Store) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: clip store is required")
	}
	deps.Clips = store

	page, err := fs.Sub(static, "static")
	if err != nil {
		return nil, errors.Wrap(err, "server: static assets")
	}

	s := &Server{
		App:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		clips:    store,
		deps:     deps,
		sessions: map[string]*widget.Session{},
	}

	s.App.Use(recover.New())
	s.App.Use(requestLogger)

	s.App.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/clips/:id", s.serveClip)

	// Middleware to require WebSocket upgrade on /ws
	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.serveWidget))

	s.App.Use("/", filesystem.New(filesystem.Config{
		Root:   http.FS(page),
		Index:  "index.html",
		MaxAge: 60,
	}))
	return s, nil
}

func (s *Server) serveClip(c *fiber.Ctx) error {
	clip, ok := s.clips.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "clip not found"})
	}
	c.Set(fiber.HeaderContentType, clip.ContentType)
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	return c.Send(clip.Data)
}

func (s *Server) serveWidget(ws *websocket.Conn) {
	session, err := widget.NewSession(ws, s.deps)
	if err != nil {
		log.Error().Err(err).Str("component", "server").Msg("failed to create widget session")
		ws.Close()
		return
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, session.ID)
		s.mu.Unlock()
	}()

	session.Run()
}

// Sessions is the number of connected widgets.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Listen(addr string) error {
	log.Info().Str("component", "server").Str("addr", addr).Msg("listening")
	return s.App.Listen(addr)
}

// Shutdown closes every widget connection and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, session := range s.sessions {
		session.Output.Stop()
	}
	s.mu.Unlock()
	return s.App.ShutdownWithContext(ctx)
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	log.Debug().
		Str("component", "server").
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	return err
}
