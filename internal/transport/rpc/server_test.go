package rpc

import (
	"context"
	"net"
	"net/rpc/jsonrpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/service"
)

type fakeService struct {
	plans map[string]*domain.TravelPlan
}

func (f *fakeService) HandleTurn(_ context.Context, sessionID, text string) (*service.TurnResult, error) {
	if text == "" {
		return nil, service.ErrEmptyTurn
	}
	return &service.TurnResult{
		SessionID:     sessionID,
		AssistantText: "echo: " + text,
		Strategy:      domain.StrategyGeneralChat,
		State:         domain.StateAwaitingInput,
	}, nil
}

func (f *fakeService) GetPlan(_ context.Context, planID string) (*domain.TravelPlan, error) {
	plan, ok := f.plans[planID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return plan, nil
}

func (f *fakeService) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	if sessionID != "s1" {
		return nil, service.ErrNotFound
	}
	return &domain.Session{SessionID: "s1", Context: domain.SessionContext{State: domain.StateAwaitingInput}}, nil
}

func startServer(t *testing.T, svc TripService) string {
	t.Helper()
	srv, err := NewServer(svc, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ln.Addr().String()
}

func TestRPCHandleTurnAndGetPlan(t *testing.T) {
	svc := &fakeService{plans: map[string]*domain.TravelPlan{
		"plan1": {PlanID: "plan1", SessionID: "s1", City: "厦门", DayCount: 2},
	}}
	client, err := jsonrpc.Dial("tcp", startServer(t, svc))
	require.NoError(t, err)
	defer client.Close()

	var turn service.TurnResult
	require.NoError(t, client.Call(ServiceName+".HandleTurn", &TurnArgs{SessionID: "s1", Text: "你好"}, &turn))
	assert.Equal(t, "s1", turn.SessionID)
	assert.Equal(t, "echo: 你好", turn.AssistantText)

	var plan domain.TravelPlan
	require.NoError(t, client.Call(ServiceName+".GetPlan", &PlanArgs{PlanID: "plan1"}, &plan))
	assert.Equal(t, "厦门", plan.City)

	var session domain.Session
	require.NoError(t, client.Call(ServiceName+".GetSession", &SessionArgs{SessionID: "s1"}, &session))
	assert.Equal(t, domain.StateAwaitingInput, session.Context.State)
}

func TestRPCErrors(t *testing.T) {
	client, err := jsonrpc.Dial("tcp", startServer(t, &fakeService{}))
	require.NoError(t, err)
	defer client.Close()

	var turn service.TurnResult
	err = client.Call(ServiceName+".HandleTurn", &TurnArgs{SessionID: "s1"}, &turn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), service.ErrEmptyTurn.Error())

	var plan domain.TravelPlan
	err = client.Call(ServiceName+".GetPlan", &PlanArgs{}, &plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan_id is required")

	err = client.Call(ServiceName+".GetPlan", &PlanArgs{PlanID: "missing"}, &plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
