package speech

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/tablevoice/internal/dialogue"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	queueSize      = 8
)

// Frame is the JSON message exchanged over the websocket.
//
// Client frames: {"type":"utterance","text":"..."}.
// Server frames: {"type":"reply","text":"...","step":"ASK_GUESTS"} and
// {"type":"error","message":"..."}.
type Frame struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Step    *dialogue.Step `json:"step,omitempty"`
	Message string         `json:"message,omitempty"`
}

const (
	FrameUtterance = "utterance"
	FrameReply     = "reply"
	FrameError     = "error"
)

// Server upgrades HTTP requests to websocket speech sessions.
type Server struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer returns a Server accepting connections from allowedOrigin, or
// from any origin when it is empty.
func NewServer(allowedOrigin string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Serve runs conv over the websocket until the client disconnects. The
// current agent line is sent first so the client can speak it.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, conv Conversation) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	pump := NewPump(conv, queueSize, s.logger)
	g, gctx := errgroup.WithContext(r.Context())

	g.Go(func() error { return pump.Run(gctx) })
	g.Go(func() error {
		defer pump.Close()
		return s.readPump(gctx, conn, pump)
	})
	g.Go(func() error { return s.writePump(gctx, conn, conv, pump.Replies()) })
	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !isClose(err) {
		s.logger.Warn("websocket session ended", "error", err)
	}
}

func isClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, errClientGone)
}

var errClientGone = errors.New("client closed connection")

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, pump *Pump) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return errClientGone
		}
		if f.Type != FrameUtterance {
			s.logger.Debug("ignoring websocket frame", "type", f.Type)
			continue
		}
		if err := pump.Submit(ctx, f.Text); err != nil {
			s.logger.Warn("utterance not queued", "error", err)
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, conv Conversation, replies <-chan Reply) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	step := conv.Step()
	if err := writeFrame(conn, Frame{Type: FrameReply, Text: conv.AgentMessage(), Step: &step}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case r, ok := <-replies:
			if !ok {
				return nil
			}
			if err := writeFrame(conn, Frame{Type: FrameReply, Text: r.Text, Step: &r.Step}); err != nil {
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
