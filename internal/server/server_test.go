package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/executor"
	"github.com/fyrsmithlabs/healerd/internal/healer"
	"github.com/fyrsmithlabs/healerd/internal/monitor"
	"github.com/fyrsmithlabs/healerd/internal/planner"
	"github.com/fyrsmithlabs/healerd/internal/safety"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const planResponse = `{
  "analysis": "nginx is stopped",
  "diagnostic_commands": ["systemctl status nginx"],
  "fix_commands": ["sudo systemctl restart nginx"],
  "verification_commands": ["systemctl is-active nginx"],
  "risk_level": "medium",
  "requires_confirmation": false
}`

type staticReasoner struct{ response string }

func (s *staticReasoner) Complete(context.Context, string) (string, error) {
	return s.response, nil
}

type okChannel struct{}

func (okChannel) Run(context.Context, string, string) (string, string, bool, error) {
	return "ok", "", true, nil
}

type serverDeps struct {
	server     *Server
	classifier *classifier.Classifier
	store      *healer.Store
}

func setupTestServer(t *testing.T) serverDeps {
	t.Helper()

	cls := classifier.New(nil, nil)
	store := healer.NewStore(100)
	gen, err := planner.NewGenerator(&staticReasoner{response: planResponse}, nil)
	require.NoError(t, err)
	coord, err := executor.NewCoordinator(okChannel{}, nil)
	require.NoError(t, err)
	h, err := healer.New(cls, gen, safety.NewGate(), coord, store, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := monitor.New(cls, h, reg, nil)
	require.NoError(t, err)

	srv, err := NewServer(m, cls, store, reg, zap.NewNop(), nil)
	require.NoError(t, err)
	return serverDeps{server: srv, classifier: cls, store: store}
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		deps := setupTestServer(t)
		assert.Equal(t, "localhost", deps.server.config.Host)
		assert.Equal(t, 8844, deps.server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		deps := setupTestServer(t)
		_, err := NewServer(deps.server.monitor, deps.classifier, deps.store, nil, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when monitor is nil", func(t *testing.T) {
		deps := setupTestServer(t)
		_, err := NewServer(nil, deps.classifier, deps.store, nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "monitor cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	deps := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	deps.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleWebhook(t *testing.T) {
	t.Run("classifies and heals a failure", func(t *testing.T) {
		deps := setupTestServer(t)

		body, err := json.Marshal(WebhookRequest{
			Source: "jenkins",
			Job:    "deploy-prod",
			Stage:  "restart",
			Error:  "failed to start nginx",
			Hosts:  []string{"web-01"},
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		deps.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp WebhookResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		require.NotNil(t, resp.ErrorRecord)
		assert.Equal(t, classifier.CategoryServiceManagement, resp.ErrorRecord.Category)
		assert.Equal(t, "deploy-prod/restart", resp.ErrorRecord.TaskName)
		require.NotNil(t, resp.Session)
		assert.Equal(t, []string{"web-01"}, resp.Session.TargetHosts)
	})

	t.Run("low severity failure is recorded but not healed", func(t *testing.T) {
		deps := setupTestServer(t)

		body, _ := json.Marshal(WebhookRequest{
			Job:   "deploy-prod",
			Error: "no package httpd available",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		deps.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp WebhookResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Nil(t, resp.Session)
		assert.Equal(t, classifier.SourceWebhook, resp.ErrorRecord.Source,
			"missing source defaults to webhook")
	})

	t.Run("rejects missing error field", func(t *testing.T) {
		deps := setupTestServer(t)

		body, _ := json.Marshal(WebhookRequest{Job: "deploy-prod"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		deps.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleErrorsAndSummary(t *testing.T) {
	deps := setupTestServer(t)
	deps.classifier.Classify(classifier.SourceGeneric, "connection refused", "", "", "ci-01", "", "")
	deps.classifier.Classify(classifier.SourceGeneric, "no space left on device", "", "", "ci-02", "", "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/errors?limit=1", nil)
	rec := httptest.NewRecorder()
	deps.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var records []classifier.ErrorRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, classifier.CategoryFilesystem, records[0].Category)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/errors/summary", nil)
	rec = httptest.NewRecorder()
	deps.server.echo.ServeHTTP(rec, req)

	var lines []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "network")
}

func TestHandleSessionsAndStats(t *testing.T) {
	deps := setupTestServer(t)
	deps.store.Append(&healer.HealingSession{SessionID: "heal-1", Success: true})
	deps.store.Append(&healer.HealingSession{SessionID: "heal-2", Success: false})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?limit=1", nil)
	rec := httptest.NewRecorder()
	deps.server.echo.ServeHTTP(rec, req)

	var sessions []healer.HealingSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "heal-2", sessions[0].SessionID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec = httptest.NewRecorder()
	deps.server.echo.ServeHTTP(rec, req)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Successes)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}

func TestHandleMetrics(t *testing.T) {
	deps := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	deps.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryLimitMalformed(t *testing.T) {
	deps := setupTestServer(t)
	deps.classifier.Classify(classifier.SourceGeneric, "timeout", "", "", "", "", "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/errors?limit=bogus", nil)
	rec := httptest.NewRecorder()
	deps.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var records []classifier.ErrorRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1, "malformed limit falls back to all records")
}
