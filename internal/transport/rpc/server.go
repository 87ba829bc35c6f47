// Package rpc exposes the trip agent over JSON-RPC for internal clients.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/service"
)

// ServiceName is the name the handler is registered under.
const ServiceName = "TripAgent"

// defaultCallTimeout bounds one RPC call.
const defaultCallTimeout = 2 * time.Minute

// TripService is the part of the service exposed over RPC.
type TripService interface {
	HandleTurn(ctx context.Context, sessionID, text string) (*service.TurnResult, error)
	GetPlan(ctx context.Context, planID string) (*domain.TravelPlan, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Server accepts JSON-RPC connections.
type Server struct {
	mu        sync.Mutex
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *zap.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the trip service.
func NewServer(svc TripService, logger *zap.Logger) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc, timeout: defaultCallTimeout}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger.Named("rpc"),
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", zap.Error(err))
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the TripAgent RPC methods.
type Handler struct {
	service TripService
	timeout time.Duration
}

// TurnArgs carries one user message.
type TurnArgs struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// PlanArgs identifies a plan.
type PlanArgs struct {
	PlanID string `json:"plan_id"`
}

// SessionArgs identifies a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// HandleTurn runs one turn.
func (h *Handler) HandleTurn(req *TurnArgs, resp *service.TurnResult) error {
	if req == nil {
		return errors.New("turn request is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	result, err := h.service.HandleTurn(ctx, req.SessionID, req.Text)
	if err != nil {
		return err
	}
	if resp != nil && result != nil {
		*resp = *result
	}
	return nil
}

// GetPlan returns a linked plan.
func (h *Handler) GetPlan(req *PlanArgs, resp *domain.TravelPlan) error {
	if req == nil || req.PlanID == "" {
		return errors.New("plan_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	plan, err := h.service.GetPlan(ctx, req.PlanID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *plan
	}
	return nil
}

// GetSession returns a session and its context.
func (h *Handler) GetSession(req *SessionArgs, resp *domain.Session) error {
	if req == nil || req.SessionID == "" {
		return errors.New("session_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	session, err := h.service.GetSession(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *session
	}
	return nil
}
