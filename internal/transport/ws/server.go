// Package ws streams assistant replies to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/service"
)

// TurnStreamer runs a turn and streams its reply.
type TurnStreamer interface {
	HandleTurnStream(ctx context.Context, sessionID, text string, sink service.ChunkSink) (*service.TurnResult, error)
}

// Options tunes connection handling.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	// TurnTimeout bounds one chat turn.
	TurnTimeout time.Duration
}

// DefaultOptions returns the settings used by the server.
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 65536,
		TurnTimeout:    60 * time.Second,
	}
}

// Server handles WebSocket connections.
type Server struct {
	opts     Options
	hub      *Hub
	turns    TurnStreamer
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a WebSocket server.
func NewServer(turns TurnStreamer, h *Hub, opts Options, logger *zap.Logger) *Server {
	return &Server{
		opts:  opts,
		hub:   h,
		turns: turns,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.Named("ws"),
	}
}

// HandleWebSocket upgrades the request and serves the connection.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)
	ws.SetReadLimit(s.opts.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		s.handleMessage(conn, message)
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("websocket write failed", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(conn *Connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeHello:
		s.handleHello(conn, data)
	case TypeChat:
		s.handleChat(conn, data)
	default:
		s.sendError(conn, base.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

func (s *Server) handleHello(conn *Connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = service.NewSessionID()
	}
	s.hub.BindSession(conn, sessionID)

	s.hub.SendJSON(conn, BaseMessage{
		Type:      TypeHelloAck,
		Ts:        nowMs(),
		RequestID: msg.RequestID,
		SessionID: sessionID,
	})
}

func (s *Server) handleChat(conn *Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid chat message")
		return
	}

	sessionID := msg.SessionID
	switch {
	case sessionID == "":
		sessionID = s.hub.SessionOf(conn)
		if sessionID == "" {
			sessionID = service.NewSessionID()
			s.hub.BindSession(conn, sessionID)
		}
	case sessionID != s.hub.SessionOf(conn):
		s.hub.BindSession(conn, sessionID)
	}

	// Turns run off the read loop so pings and other sessions keep flowing.
	go s.runTurn(conn, sessionID, msg)
}

func (s *Server) runTurn(conn *Connection, sessionID string, msg ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.TurnTimeout)
	defer cancel()

	sink := service.ChunkSinkFunc(func(_ context.Context, chunk service.Chunk) error {
		base := BaseMessage{Ts: nowMs(), RequestID: msg.RequestID, SessionID: chunk.SessionID}
		if chunk.Done {
			base.Type = TypeDone
			return s.hub.BroadcastJSON(chunk.SessionID, DoneMessage{
				BaseMessage: base,
				PlanID:      chunk.PlanID,
				Retryable:   chunk.Retryable,
			})
		}
		base.Type = TypeDelta
		return s.hub.BroadcastJSON(chunk.SessionID, DeltaMessage{BaseMessage: base, Seq: chunk.Seq, Text: chunk.Text})
	})

	_, err := s.turns.HandleTurnStream(ctx, sessionID, msg.Content, sink)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrEmptyTurn):
		s.sendError(conn, msg.RequestID, ErrorCodeInvalidMessage, "content is required")
	case errors.Is(err, service.ErrSessionBusy):
		s.sendError(conn, msg.RequestID, ErrorCodeSessionBusy, "session is handling another message")
	default:
		s.logger.Error("turn failed", zap.String("session_id", sessionID), zap.Error(err))
		s.sendError(conn, msg.RequestID, ErrorCodeInternalError, "failed to handle message")
	}
}

func (s *Server) sendError(conn *Connection, requestID, code, message string) {
	err := s.hub.SendJSON(conn, ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      TypeError,
			Ts:        nowMs(),
			RequestID: requestID,
			SessionID: s.hub.SessionOf(conn),
		},
		Code:    code,
		Message: message,
	})
	if err != nil {
		s.logger.Debug("failed to send error", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}
