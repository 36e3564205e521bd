package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

type streamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Stream pushes a snapshot on connect and after every state change.
type Stream struct {
	core     Core
	upgrader websocket.Upgrader
	handler  *Handler
}

// NewStream builds a Stream accepting connections from allowedOrigins. An
// empty list or "*" accepts any origin.
func NewStream(h *Handler, allowedOrigins []string) *Stream {
	return &Stream{
		core:    h.core,
		handler: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[strings.ToLower(origin)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(set) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// Serve upgrades the connection and runs it until the client goes away or
// the core shuts down.
func (s *Stream) Serve(c echo.Context) error {
	ctx := c.Request().Context()
	logger := handlerLogger(ctx, s.handler.logger, "Stream")

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	signals, unsubscribe := s.core.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxInboundSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.InfoContext(ctx, "websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	logger.InfoContext(ctx, "stream opened")
	if err := s.push(conn); err != nil {
		return nil
	}
	for {
		select {
		case _, ok := <-signals:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				logger.InfoContext(ctx, "stream closed by shutdown")
				return nil
			}
			if err := s.push(conn); err != nil {
				logger.InfoContext(ctx, "stream write failed", "error", err)
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			logger.InfoContext(ctx, "stream closed by client")
			return nil
		}
	}
}

func (s *Stream) push(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(streamMessage{Type: "snapshot", Data: s.core.Snapshot()})
}
