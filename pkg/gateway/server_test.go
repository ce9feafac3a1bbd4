package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finsight/pkg/agent"
	"finsight/pkg/service"
	"finsight/pkg/team"
	"finsight/pkg/trace"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	content string
}

func (p *stubProvider) Call(_ context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
	return &agent.LLMResponse{Content: p.content}, nil
}

func (p *stubProvider) Provider() string { return "stub" }

func newTestService(t *testing.T) *service.Service {
	t.Helper()

	logger := zerolog.Nop()
	cfg := agent.DefaultConfig()
	cfg.Name = "Web Agent"
	a, err := agent.New(cfg, &stubProvider{content: "stub answer"}, nil, logger)
	require.NoError(t, err)

	tm, err := team.New(team.Config{Name: "Test Team"}, []*agent.Agent{a}, nil, logger)
	require.NoError(t, err)

	svc, err := service.New(service.Config{
		Team:    tm,
		Timeout: 5 * time.Second,
		Logger:  logger,
	})
	require.NoError(t, err)
	return svc
}

func newTestServer(t *testing.T, secret string) (*Server, *httptest.Server) {
	t.Helper()

	s, err := NewServer(Config{
		Host:         "127.0.0.1",
		Port:         8080,
		SharedSecret: secret,
		Service:      newTestService(t),
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestNewServer(t *testing.T) {
	t.Run("requires valid port", func(t *testing.T) {
		_, err := NewServer(Config{Port: 0, Service: newTestService(t)})
		assert.Error(t, err)
	})

	t.Run("requires service", func(t *testing.T) {
		_, err := NewServer(Config{Port: 8080})
		assert.Error(t, err)
	})
}

func TestSubmitAndResult(t *testing.T) {
	_, ts := newTestServer(t, "")

	body := bytes.NewBufferString(`{"query": "whats happening with NVDA?"}`)
	resp, err := http.Post(ts.URL+"/v1/runs", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.NotEmpty(t, submitted.RunID)

	// Poll until the run completes
	var result struct {
		Status string `json:"status"`
		Answer string `json:"answer"`
	}
	assert.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/v1/runs/" + submitted.RunID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			return false
		}
		return result.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, result.Answer, "stub answer")

	// Trace is available for the finished run
	tr, err := http.Get(ts.URL + "/v1/runs/" + submitted.RunID + "/trace")
	require.NoError(t, err)
	defer tr.Body.Close()
	assert.Equal(t, http.StatusOK, tr.StatusCode)

	var traced struct {
		Events []trace.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(tr.Body).Decode(&traced))
	assert.NotEmpty(t, traced.Events)
}

func TestSubmitValidation(t *testing.T) {
	_, ts := newTestServer(t, "")

	t.Run("empty query", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/runs", "application/json", strings.NewReader(`{"query": "  "}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/runs", "application/json", strings.NewReader(`{`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuth(t *testing.T) {
	_, ts := newTestServer(t, "topsecret")

	t.Run("missing token", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/runs", "application/json", strings.NewReader(`{"query": "q"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/runs", strings.NewReader(`{"query": "q"}`))
		req.Header.Set("Authorization", "Bearer wrong")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/runs", strings.NewReader(`{"query": "q"}`))
		req.Header.Set("Authorization", "Bearer topsecret")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("healthz is open", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestUnknownRun(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/v1/runs/no-such-run")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunStream(t *testing.T) {
	s, ts := newTestServer(t, "")

	t.Run("unknown run", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/runs/no-such-run/stream")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("delivers only the requested run", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/v1/runs", "application/json",
			strings.NewReader(`{"query": "NVDA outlook"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var submitted struct {
			RunID string `json:"run_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))

		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/" + submitted.RunID + "/stream"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		assert.Eventually(t, func() bool {
			return s.Stream().ClientCount() == 1
		}, 2*time.Second, 10*time.Millisecond)

		other := trace.Thought("Web Agent", "other run")
		other.RunID = "some-other-run"
		s.Stream().Record(other)

		mine := trace.Thought("Web Agent", "this run")
		mine.RunID = submitted.RunID
		s.Stream().Record(mine)

		var got trace.Event
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, submitted.RunID, got.RunID)
		assert.Equal(t, "this run", got.Payload)
	})
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	ts := httptest.NewServer(http.HandlerFunc(b.HandleWebSocket))
	defer ts.Close()
	defer b.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return b.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	b.Record(trace.Thought("Web Agent", "thinking"))

	var got trace.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, trace.KindThought, got.Kind)
	assert.Equal(t, "Web Agent", got.Agent)
}
