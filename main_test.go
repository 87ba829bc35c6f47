package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/adapter/llm"
	"github.com/xiaot623/gogo/tripagent/internal/cache"
	"github.com/xiaot623/gogo/tripagent/internal/config"
	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/invoker"
	"github.com/xiaot623/gogo/tripagent/internal/ledger"
	"github.com/xiaot623/gogo/tripagent/internal/service"
	handler "github.com/xiaot623/gogo/tripagent/internal/transport/http"
	"github.com/xiaot623/gogo/tripagent/internal/transport/ws"
	"github.com/xiaot623/gogo/tripagent/tests/helpers"
)

func TestBuildRegistry_Mock(t *testing.T) {
	cfg := config.Default()
	reg, err := buildRegistry(cfg, llm.NewMockClient(), zap.NewNop())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		domain.ToolIntentClassifier,
		domain.ToolAttractionSearch,
		domain.ToolHotelSearch,
		domain.ToolWeatherLookup,
		domain.ToolMealSuggestion,
	}, reg.Names())

	out, err := reg.Execute(context.Background(), domain.ToolIntentClassifier,
		json.RawMessage(`{"text":"我想去厦门玩"}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), "trip_planning")
}

func TestBuildRegistry_RemoteCapabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/capabilities/hotel_search", r.URL.Path)
		w.Write([]byte(`{"hotels":[]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.CapabilityURL = srv.URL
	reg, err := buildRegistry(cfg, llm.NewMockClient(), zap.NewNop())
	require.NoError(t, err)

	out, err := reg.Execute(context.Background(), domain.ToolHotelSearch, json.RawMessage(`{"city":"厦门"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"hotels":[]}`, string(out))
}

func TestChatClient(t *testing.T) {
	reg, err := buildRegistry(config.Default(), llm.NewMockClient(), zap.NewNop())
	require.NoError(t, err)
	l := ledger.New(helpers.NewTestSQLiteStore(t), cache.NewSessionCache(time.Hour), nil, zap.NewNop())
	svc := service.New(l, invoker.New(reg, l, zap.NewNop()), llm.NewMockClient(), service.DefaultConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := ws.NewHub(zap.NewNop())
	go hub.Run(ctx)
	e := handler.NewServer(svc, ws.NewServer(svc, hub, ws.DefaultOptions(), zap.NewNop()), nil, zap.NewNop())
	srv := httptest.NewServer(e)
	defer srv.Close()

	client, err := dialChat("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Hello("s1"))
	assert.Equal(t, "s1", client.sessionID)

	var out bytes.Buffer
	require.NoError(t, client.Loop(strings.NewReader("2026年1月20日去厦门玩两天\n/quit\n"), &out))
	assert.Contains(t, out.String(), "厦门2日游")
	assert.Contains(t, out.String(), "[plan plan_")
	assert.Contains(t, out.String(), "Bye!")

	plans, err := svc.ListPlans(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}
