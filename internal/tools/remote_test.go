package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRemote(url string) *RemoteClient {
	cfg := DefaultRemoteConfig(url)
	cfg.RPS = 0
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	cfg.OpenTimeout = time.Minute
	return NewRemoteClient(cfg, zap.NewNop())
}

func TestRemoteClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/capabilities/hotel_search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"city":"厦门"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hotels":[{"name":"A","estimated_cost":200}]}`))
	}))
	defer srv.Close()

	c := newTestRemote(srv.URL)
	out, err := c.Execute(context.Background(), "hotel_search", json.RawMessage(`{"city":"厦门"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"hotels":[{"name":"A","estimated_cost":200}]}`, string(out))
}

func TestRemoteClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestRemote(srv.URL)
	for i := 0; i < 2; i++ {
		_, err := c.Execute(context.Background(), "weather_lookup", json.RawMessage(`{}`))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable), "server errors are invocation errors")
	}

	_, err := c.Execute(context.Background(), "weather_lookup", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrUnavailable), "open breaker reports unavailable")
	assert.Equal(t, int32(2), hits.Load(), "open breaker does not reach the server")

	// Breakers are per capability.
	_, err = c.Execute(context.Background(), "hotel_search", json.RawMessage(`{}`))
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestRemoteClient_RejectionDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad city", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestRemote(srv.URL)
	for i := 0; i < 4; i++ {
		_, err := c.Execute(context.Background(), "hotel_search", json.RawMessage(`{}`))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
		assert.Contains(t, err.Error(), "400")
	}
}

func TestRemoteClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestRemote(url)
	_, err := c.Execute(context.Background(), "hotel_search", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestRemoteClient_BindReplacesBuiltin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/capabilities/weather_lookup", r.URL.Path)
		w.Write([]byte(`{"weather":{"day_weather":"雨"}}`))
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Replace("weather_lookup", newTestRemote(srv.URL).Bind("weather_lookup"))
	out, err := reg.Execute(context.Background(), "weather_lookup", json.RawMessage(`{"city":"厦门"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"weather":{"day_weather":"雨"}}`, string(out))
}
