package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brandworks/social-automation/publication-governor/internal/auth"
	"github.com/brandworks/social-automation/publication-governor/internal/experiment"
	"github.com/brandworks/social-automation/publication-governor/internal/gate"
	"github.com/brandworks/social-automation/publication-governor/internal/models"
	"github.com/brandworks/social-automation/publication-governor/internal/optimizer"
	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
	"github.com/brandworks/social-automation/publication-governor/internal/safety"
	"github.com/brandworks/social-automation/publication-governor/internal/store"
)

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, content string) (*publisher.PostResult, error) {
	return &publisher.PostResult{ExternalPostID: "post-1", PostedAt: time.Now().UTC()}, nil
}

type stubFetcher struct{}

func (stubFetcher) FetchPerformance(ctx context.Context, postID, campaignID string) (*publisher.PerformanceMetrics, error) {
	return &publisher.PerformanceMetrics{Likes: 1, Impressions: 100}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type testEnv struct {
	router *gin.Engine
	audit  *safety.MemoryAuditStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := testLogger()

	flagStore := store.NewMemoryFlagStore()
	publishGate := gate.New(flagStore, logger)

	audit := safety.NewMemoryAuditStore(100)
	filter := safety.NewFilter(safety.DefaultBlacklist(), safety.Config{}, nil, audit, logger)

	orch := experiment.NewOrchestrator(
		experiment.NewMemoryStore(), publishGate, filter, stubPublisher{}, stubFetcher{},
		experiment.Config{AgentName: "TwitterAgent", MaxVariants: 3}, logger,
	)

	jwtManager, err := auth.NewJWTManager("handler-test-secret")
	require.NoError(t, err)

	hashed, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	operators := store.NewMemoryOperatorStore()
	operators.Put(models.Operator{
		ID:             "op-1",
		Name:           "Test Operator",
		Email:          "ops@example.com",
		HashedPassword: string(hashed),
		CreatedAt:      time.Now().UTC(),
	})

	agents := []string{"TwitterAgent", "ContentGenerationAgent"}
	h := NewHandler(publishGate, filter, audit, optimizer.New(logger), orch, jwtManager, operators, agents, logger)

	router := gin.New()
	router.POST("/api/auth/login", h.Login)
	router.GET("/api/agents/status", h.AgentStatusList)
	router.GET("/api/agents/:name/status", h.AgentStatus)
	router.POST("/api/agents/:name/pause", h.PauseAgent)
	router.POST("/api/agents/:name/resume", h.ResumeAgent)
	router.POST("/api/agents/emergency-stop", h.EmergencyStop)
	router.POST("/api/safety/check", h.CheckSafety)
	router.GET("/api/safety/audit", h.ListAudit)
	router.DELETE("/api/safety/audit", h.ClearAudit)
	router.POST("/api/campaigns/:id/blacklist", h.AddCampaignBlacklist)
	router.POST("/api/optimize", h.OptimizeContent)
	router.POST("/api/experiments", h.CreateExperiment)
	router.GET("/api/experiments", h.ListExperiments)
	router.GET("/api/experiments/running", h.ListRunningExperiments)
	router.GET("/api/experiments/:id", h.GetExperiment)
	router.POST("/api/experiments/:id/cancel", h.CancelExperiment)

	return &testEnv{router: router, audit: audit}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)

	t.Run("valid credentials return a token", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{
			"email":    "ops@example.com",
			"password": "secret123",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "ops@example.com", resp.Operator.Email)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{
			"email":    "ops@example.com",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown operator is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{
			"email":    "nobody@example.com",
			"password": "secret123",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed request is a bad request", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "not-an-email"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_PauseResumeStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/agents/TwitterAgent/pause", gin.H{"reason": "content incident"})
	require.Equal(t, http.StatusOK, w.Code)

	var flag gate.AgentFlag
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flag))
	assert.True(t, flag.Paused)
	assert.Equal(t, "content incident", flag.Reason)

	w = env.do(t, http.MethodGet, "/api/agents/TwitterAgent/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flag))
	assert.True(t, flag.Paused)

	w = env.do(t, http.MethodPost, "/api/agents/TwitterAgent/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flag))
	assert.False(t, flag.Paused)

	t.Run("pause without reason is a bad request", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/agents/TwitterAgent/pause", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_AgentStatusList(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/agents/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var flags []gate.AgentFlag
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flags))
	require.Len(t, flags, 2)
	for _, f := range flags {
		assert.False(t, f.Paused)
	}
}

func TestHandler_EmergencyStop(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/agents/emergency-stop", gin.H{"reason": "outage"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp EmergencyStopResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{"TwitterAgent", "ContentGenerationAgent"}, resp.Stopped)
	assert.Empty(t, resp.Failed)

	// Every managed agent reports paused afterwards.
	w = env.do(t, http.MethodGet, "/api/agents/status", nil)
	var flags []gate.AgentFlag
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flags))
	for _, f := range flags {
		assert.True(t, f.Paused)
		assert.Equal(t, "outage", f.Reason)
	}
}

func TestHandler_SafetyCheckAndAudit(t *testing.T) {
	env := newTestEnv(t)

	t.Run("clean text is approved", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/safety/check", gin.H{"text": "launching our new product"})
		require.Equal(t, http.StatusOK, w.Code)

		var result safety.SafetyResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.IsSafe)
	})

	t.Run("flagged text is rejected and audited", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/safety/check", gin.H{"text": "this is shit", "campaign_id": "camp-1"})
		require.Equal(t, http.StatusOK, w.Code)

		var result safety.SafetyResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.False(t, result.IsSafe)
		assert.Contains(t, result.FlaggedTerms, "shit")

		w = env.do(t, http.MethodGet, "/api/safety/audit?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var entries []safety.AuditEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		assert.NotEmpty(t, entries)
	})

	t.Run("clear empties the audit trail", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/safety/audit", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(t, http.MethodGet, "/api/safety/audit", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var entries []safety.AuditEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		assert.Empty(t, entries)
	})

	t.Run("negative limit is a bad request", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/safety/audit?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_AddCampaignBlacklist(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/campaigns/camp-1/blacklist", gin.H{"terms": []string{"competitor"}})
	require.Equal(t, http.StatusOK, w.Code)

	// The term only applies to that campaign.
	w = env.do(t, http.MethodPost, "/api/safety/check", gin.H{"text": "our competitor is great", "campaign_id": "camp-1"})
	var result safety.SafetyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.IsSafe)

	w = env.do(t, http.MethodPost, "/api/safety/check", gin.H{"text": "our competitor is great", "campaign_id": "camp-2"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.IsSafe)

	t.Run("empty terms list is a bad request", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/campaigns/camp-1/blacklist", gin.H{"terms": []string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Optimize(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/optimize", gin.H{
		"content": "check out our new coffee blend",
		"insights": gin.H{
			"common_patterns":      []string{"exclusive offers"},
			"recommended_hashtags": []string{"#coffee"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result optimizer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Optimized)
	assert.NotEmpty(t, result.Improvements)

	t.Run("missing content is a bad request", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/optimize", gin.H{"insights": gin.H{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_ExperimentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/experiments", gin.H{
		"campaign_id": "camp-1",
		"variants":    []string{"variant A", "variant B"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var created ExperimentCreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ExperimentID)

	// The record is visible immediately and reaches a terminal state.
	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, fmt.Sprintf("/api/experiments/%s", created.ExperimentID), nil)
		if w.Code != http.StatusOK {
			return false
		}
		var exp experiment.Experiment
		if err := json.Unmarshal(w.Body.Bytes(), &exp); err != nil {
			return false
		}
		return exp.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodGet, "/api/experiments?campaign_id=camp-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var exps []experiment.Experiment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exps))
	assert.Len(t, exps, 1)

	t.Run("missing campaign filter is a bad request", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/experiments", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown experiment is not found", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/experiments/unknown-id", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = env.do(t, http.MethodPost, "/api/experiments/unknown-id/cancel", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("cancel on a terminal experiment returns its record", func(t *testing.T) {
		w := env.do(t, http.MethodPost, fmt.Sprintf("/api/experiments/%s/cancel", created.ExperimentID), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var exp experiment.Experiment
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
		assert.True(t, exp.Terminal())
	})

	t.Run("running list excludes finished experiments", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/experiments/running", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var running []experiment.Experiment
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &running))
		assert.Empty(t, running)
	})
}
