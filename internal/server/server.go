// Package server exposes the search service over WebSocket.
//
// One fiber app, one upgrade route at /ws. Each connection gets a
// broadcast session: a read loop parses client frames and dispatches
// them, a write pump drains the session's outbound queue. A bad frame
// earns an error reply, never a disconnect; a failed write closes that
// session and leaves the others alone.
package server

import (
	"context"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/filesense/filesense/internal/broadcast"
	"github.com/filesense/filesense/internal/config"
	ferrors "github.com/filesense/filesense/internal/errors"
	"github.com/filesense/filesense/internal/index"
	"github.com/filesense/filesense/internal/protocol"
	"github.com/filesense/filesense/internal/query"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Server owns the fiber app and the per-connection plumbing.
type Server struct {
	app         *fiber.App
	cfg         *config.Config
	coordinator *index.Coordinator
	engine      *query.Engine
	bus         *broadcast.Broadcaster
	logger      *slog.Logger
}

// New wires the transport. The coordinator and engine must already be
// running against the same catalog and indexes.
func New(cfg *config.Config, coordinator *index.Coordinator, engine *query.Engine,
	bus *broadcast.Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         cfg,
		coordinator: coordinator,
		engine:      engine,
		bus:         bus,
		logger:      logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           0, // websocket connections are long-lived
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": bus.Count()})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleConn))

	s.app = app
	return s
}

// Run binds the listener and serves until Shutdown. A bind failure is
// fatal for the process; the caller decides what that means.
func (s *Server) Run() error {
	s.logger.Info("listening", "addr", s.cfg.Server.ListenAddr)
	return s.app.Listen(s.cfg.Server.ListenAddr)
}

// Shutdown stops accepting connections and drains existing ones.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleConn runs one WebSocket session to completion.
func (s *Server) handleConn(conn *websocket.Conn) {
	sess := s.bus.Register()
	defer s.bus.Unregister(sess.ID())

	s.logger.Info("session connected", "session", sess.ID())
	defer s.logger.Info("session disconnected", "session", sess.ID())

	done := make(chan struct{})
	go s.writePump(conn, sess, done)

	s.readLoop(conn, sess)
	close(done)
}

// readLoop parses and dispatches client frames until the peer goes
// away. Malformed input is answered, not punished.
func (s *Server) readLoop(conn *websocket.Conn, sess *broadcast.Session) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("session read failed", "session", sess.ID(), "error", err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			s.bus.Send(sess.ID(), protocol.NewError("invalid message format"))
			continue
		}

		msg, parseErr := protocol.ParseClientMessage(data)
		if parseErr != nil {
			s.bus.Send(sess.ID(), protocol.NewError(clientMessage(parseErr)))
			continue
		}

		s.dispatch(sess, msg)
	}
}

// dispatch routes one parsed client message. Folder operations run in
// the background so a long batch index never stalls the read loop;
// their outcomes arrive as broadcast events.
func (s *Server) dispatch(sess *broadcast.Session, msg *protocol.ClientMessage) {
	switch msg.Type {
	case protocol.TypeSearch:
		result, err := s.engine.Search(context.Background(), msg.Text, msg.Limit)
		if err != nil {
			s.logger.Warn("search failed", "session", sess.ID(), "error", err)
			s.bus.Send(sess.ID(), protocol.NewError(clientMessage(err)))
			return
		}
		s.bus.Send(sess.ID(), result)

	case protocol.TypeIndexFolder:
		path := msg.Path
		id := sess.ID()
		go func() {
			if _, err := s.coordinator.AddFolder(context.Background(), path); err != nil {
				s.logger.Warn("index folder failed", "path", path, "error", err)
				s.bus.Send(id, protocol.NewError(clientMessage(err)))
			}
		}()

	case protocol.TypeRemoveFolder:
		path := msg.Path
		id := sess.ID()
		go func() {
			if err := s.coordinator.RemoveFolder(context.Background(), path); err != nil {
				s.logger.Warn("remove folder failed", "path", path, "error", err)
				s.bus.Send(id, protocol.NewError(clientMessage(err)))
			}
		}()
	}
}

// writePump drains the session queue onto the wire. A write failure
// tears down only this connection.
func (s *Server) writePump(conn *websocket.Conn, sess *broadcast.Session, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case data, ok := <-sess.Outbound():
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("session write failed", "session", sess.ID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientMessage picks the human-readable part of an error for the wire.
// Structured errors carry one; anything else goes out as-is.
func clientMessage(err error) string {
	var ferr *ferrors.Error
	if stderrors.As(err, &ferr) {
		return ferr.Message
	}
	return err.Error()
}

// ListFolders returns the watched roots.
func (s *Server) ListFolders() []string {
	return s.coordinator.Folders()
}

// AddFolder watches and batch-indexes a folder.
func (s *Server) AddFolder(ctx context.Context, path string) (protocol.IndexStats, error) {
	return s.coordinator.AddFolder(ctx, path)
}

// RemoveFolder stops watching a folder and purges its index state.
func (s *Server) RemoveFolder(ctx context.Context, path string) error {
	return s.coordinator.RemoveFolder(ctx, path)
}

// Search runs a semantic query.
func (s *Server) Search(ctx context.Context, text string, limit int) (protocol.SearchResultMessage, error) {
	return s.engine.Search(ctx, text, limit)
}

// SearchText runs an exact-text query.
func (s *Server) SearchText(ctx context.Context, text string, limit int) (protocol.SearchResultMessage, error) {
	return s.engine.SearchText(ctx, text, limit)
}
