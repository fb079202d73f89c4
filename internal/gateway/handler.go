package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/brandworks/social-automation/publication-governor/internal/auth"
	"github.com/brandworks/social-automation/publication-governor/internal/experiment"
	"github.com/brandworks/social-automation/publication-governor/internal/gate"
	"github.com/brandworks/social-automation/publication-governor/internal/models"
	"github.com/brandworks/social-automation/publication-governor/internal/optimizer"
	"github.com/brandworks/social-automation/publication-governor/internal/safety"
	"github.com/brandworks/social-automation/publication-governor/internal/store"
)

// TermPersister saves campaign blacklist additions so they survive
// restarts. Optional; memory-backed deployments run without one.
type TermPersister interface {
	SaveCampaignTerms(ctx context.Context, campaignID string, entries []safety.BlacklistEntry) error
}

// Handler handles HTTP requests for the governor control surface
type Handler struct {
	gate         *gate.Gate
	filter       *safety.Filter
	audit        safety.AuditStore
	optimizer    *optimizer.Optimizer
	orchestrator *experiment.Orchestrator
	jwtManager   *auth.JWTManager
	operators    store.OperatorStore
	terms        TermPersister
	agents       []string
	logger       *logrus.Logger
}

// NewHandler creates a new gateway handler
func NewHandler(g *gate.Gate, filter *safety.Filter, audit safety.AuditStore, opt *optimizer.Optimizer, orch *experiment.Orchestrator, jwtManager *auth.JWTManager, operators store.OperatorStore, agents []string, logger *logrus.Logger) *Handler {
	return &Handler{
		gate:         g,
		filter:       filter,
		audit:        audit,
		optimizer:    opt,
		orchestrator: orch,
		jwtManager:   jwtManager,
		operators:    operators,
		agents:       agents,
		logger:       logger,
	}
}

// SetTermPersister attaches a campaign blacklist persister.
func (h *Handler) SetTermPersister(p TermPersister) {
	h.terms = p
}

// Login godoc
// @Summary Operator login
// @Description Authenticate operator and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	op, err := h.operators.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.WithField("email", req.Email).Warn("Operator not found")
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.HashedPassword), []byte(req.Password)); err != nil {
		h.logger.WithField("email", req.Email).Warn("Invalid password")
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	token, err := h.jwtManager.GenerateToken(c.Request.Context(), op.ID, op.Email, []string{"operator"}, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Operator:  op.ToOperatorInfo(),
	})
}

// PauseRequest represents an agent pause request
type PauseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PauseAgent godoc
// @Summary Pause an agent
// @Description Pause publishing for one agent with a reason
// @Tags agents
// @Accept json
// @Produce json
// @Param name path string true "Agent name"
// @Param request body PauseRequest true "Pause reason"
// @Success 200 {object} gate.AgentFlag
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /agents/{name}/pause [post]
func (h *Handler) PauseAgent(c *gin.Context) {
	agentName := c.Param("name")

	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	actor := operatorID(c)
	if err := h.gate.Pause(c.Request.Context(), agentName, req.Reason, actor); err != nil {
		h.logger.WithError(err).WithField("agent", agentName).Error("Failed to pause agent")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to pause agent", Code: models.ErrCodeInternalError})
		return
	}

	flag, err := h.gate.Status(c.Request.Context(), agentName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to read agent status", Code: models.ErrCodeInternalError})
		return
	}
	c.JSON(http.StatusOK, flag)
}

// ResumeAgent godoc
// @Summary Resume an agent
// @Description Clear an agent's pause flag
// @Tags agents
// @Produce json
// @Param name path string true "Agent name"
// @Success 200 {object} gate.AgentFlag
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /agents/{name}/resume [post]
func (h *Handler) ResumeAgent(c *gin.Context) {
	agentName := c.Param("name")

	actor := operatorID(c)
	if err := h.gate.Resume(c.Request.Context(), agentName, actor); err != nil {
		h.logger.WithError(err).WithField("agent", agentName).Error("Failed to resume agent")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to resume agent", Code: models.ErrCodeInternalError})
		return
	}

	flag, err := h.gate.Status(c.Request.Context(), agentName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to read agent status", Code: models.ErrCodeInternalError})
		return
	}
	c.JSON(http.StatusOK, flag)
}

// AgentStatus godoc
// @Summary Get agent status
// @Description Report one agent's pause flag
// @Tags agents
// @Produce json
// @Param name path string true "Agent name"
// @Success 200 {object} gate.AgentFlag
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /agents/{name}/status [get]
func (h *Handler) AgentStatus(c *gin.Context) {
	flag, err := h.gate.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to read agent status", Code: models.ErrCodeInternalError})
		return
	}
	c.JSON(http.StatusOK, flag)
}

// AgentStatusList godoc
// @Summary List managed agent statuses
// @Description Report the pause flag for every managed agent
// @Tags agents
// @Produce json
// @Success 200 {array} gate.AgentFlag
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /agents/status [get]
func (h *Handler) AgentStatusList(c *gin.Context) {
	flags := make([]gate.AgentFlag, 0, len(h.agents))
	for _, agent := range h.agents {
		flag, err := h.gate.Status(c.Request.Context(), agent)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to read agent status", Code: models.ErrCodeInternalError})
			return
		}
		flags = append(flags, flag)
	}
	c.JSON(http.StatusOK, flags)
}

// EmergencyStopRequest represents an emergency stop request
type EmergencyStopRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// EmergencyStopResponse represents the outcome of an emergency stop
type EmergencyStopResponse struct {
	Stopped []string          `json:"stopped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// EmergencyStop godoc
// @Summary Emergency stop all agents
// @Description Pause every managed agent at once
// @Tags agents
// @Accept json
// @Produce json
// @Param request body EmergencyStopRequest true "Stop reason"
// @Success 200 {object} EmergencyStopResponse
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /agents/emergency-stop [post]
func (h *Handler) EmergencyStop(c *gin.Context) {
	var req EmergencyStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	report := h.gate.EmergencyStopAll(c.Request.Context(), h.agents, req.Reason)

	resp := EmergencyStopResponse{Stopped: report.Stopped}
	if len(report.Failed) > 0 {
		resp.Failed = make(map[string]string, len(report.Failed))
		for _, f := range report.Failed {
			resp.Failed[f.AgentName] = f.Err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SafetyCheckRequest represents a safety check request
type SafetyCheckRequest struct {
	Text       string `json:"text" binding:"required"`
	CampaignID string `json:"campaign_id"`
}

// CheckSafety godoc
// @Summary Check content safety
// @Description Scan text against the brand-safety blacklist
// @Tags safety
// @Accept json
// @Produce json
// @Param request body SafetyCheckRequest true "Text to check"
// @Success 200 {object} safety.SafetyResult
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /safety/check [post]
func (h *Handler) CheckSafety(c *gin.Context) {
	var req SafetyCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	result := h.filter.CheckSafety(c.Request.Context(), req.Text, req.CampaignID)
	c.JSON(http.StatusOK, result)
}

// ListAudit godoc
// @Summary List safety audit trail
// @Description Return audit entries, newest first
// @Tags safety
// @Produce json
// @Param limit query int false "Maximum entries to return"
// @Success 200 {array} safety.AuditEntry
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /safety/audit [get]
func (h *Handler) ListAudit(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid limit", Code: models.ErrCodeInvalidRequest})
			return
		}
		limit = parsed
	}

	entries, err := h.audit.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list audit trail")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list audit trail", Code: models.ErrCodeInternalError})
		return
	}
	if entries == nil {
		entries = []safety.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// ClearAudit godoc
// @Summary Clear safety audit trail
// @Description Remove every audit entry
// @Tags safety
// @Produce json
// @Success 204 "No Content"
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /safety/audit [delete]
func (h *Handler) ClearAudit(c *gin.Context) {
	if err := h.audit.Clear(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear audit trail")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to clear audit trail", Code: models.ErrCodeInternalError})
		return
	}
	c.Status(http.StatusNoContent)
}

// BlacklistRequest represents a campaign blacklist addition
type BlacklistRequest struct {
	Terms []string `json:"terms" binding:"required,min=1"`
}

// AddCampaignBlacklist godoc
// @Summary Add campaign blacklist terms
// @Description Layer extra disallowed terms onto one campaign's checks
// @Tags safety
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Param request body BlacklistRequest true "Terms to add"
// @Success 200 {object} map[string]int
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /campaigns/{id}/blacklist [post]
func (h *Handler) AddCampaignBlacklist(c *gin.Context) {
	campaignID := c.Param("id")

	var req BlacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	entries := make([]safety.BlacklistEntry, 0, len(req.Terms))
	for _, term := range req.Terms {
		entries = append(entries, safety.BlacklistEntry{
			Term:     term,
			Category: safety.CategoryCustom,
			Severity: safety.SeverityMedium,
		})
	}

	h.filter.AddCampaignTerms(campaignID, entries)

	if h.terms != nil {
		if err := h.terms.SaveCampaignTerms(c.Request.Context(), campaignID, entries); err != nil {
			h.logger.WithError(err).WithField("campaign", campaignID).Error("Failed to persist campaign terms")
		}
	}

	c.JSON(http.StatusOK, gin.H{"added": len(entries)})
}

// OptimizeRequest represents a content optimization request
type OptimizeRequest struct {
	Content  string             `json:"content" binding:"required"`
	Insights optimizer.Insights `json:"insights"`
}

// OptimizeContent godoc
// @Summary Optimize content
// @Description Rewrite a draft using historical performance insights
// @Tags optimizer
// @Accept json
// @Produce json
// @Param request body OptimizeRequest true "Draft and insights"
// @Success 200 {object} optimizer.Result
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /optimize [post]
func (h *Handler) OptimizeContent(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	result, err := h.optimizer.Optimize(req.Content, req.Insights)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeValidationFailed})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExperimentRequest represents an experiment creation request
type ExperimentRequest struct {
	CampaignID string   `json:"campaign_id" binding:"required"`
	Variants   []string `json:"variants" binding:"required,min=1"`
}

// ExperimentCreatedResponse represents a started experiment
type ExperimentCreatedResponse struct {
	ExperimentID string `json:"experiment_id"`
	Status       string `json:"status"`
}

// CreateExperiment godoc
// @Summary Start a content experiment
// @Description Post variants, evaluate them, and pick a winner asynchronously
// @Tags experiments
// @Accept json
// @Produce json
// @Param request body ExperimentRequest true "Campaign and variants"
// @Success 202 {object} ExperimentCreatedResponse
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /experiments [post]
func (h *Handler) CreateExperiment(c *gin.Context) {
	var req ExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	id, err := h.orchestrator.Start(c.Request.Context(), req.Variants, req.CampaignID)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeValidationFailed})
		return
	}

	c.JSON(http.StatusAccepted, ExperimentCreatedResponse{
		ExperimentID: id,
		Status:       string(experiment.StatusRunning),
	})
}

// GetExperiment godoc
// @Summary Get an experiment
// @Description Return one experiment's full record
// @Tags experiments
// @Produce json
// @Param id path string true "Experiment ID"
// @Success 200 {object} experiment.Experiment
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /experiments/{id} [get]
func (h *Handler) GetExperiment(c *gin.Context) {
	exp, err := h.orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, experiment.ErrExperimentNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Experiment not found", Code: models.ErrCodeExperimentNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get experiment", Code: models.ErrCodeInternalError})
		return
	}
	c.JSON(http.StatusOK, exp)
}

// ListExperiments godoc
// @Summary List experiments for a campaign
// @Description Return a campaign's experiments, newest first
// @Tags experiments
// @Produce json
// @Param campaign_id query string true "Campaign ID"
// @Success 200 {array} experiment.Experiment
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /experiments [get]
func (h *Handler) ListExperiments(c *gin.Context) {
	campaignID := c.Query("campaign_id")
	if campaignID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "campaign_id is required", Code: models.ErrCodeInvalidRequest})
		return
	}

	exps, err := h.orchestrator.ListByCampaign(c.Request.Context(), campaignID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list experiments", Code: models.ErrCodeInternalError})
		return
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	c.JSON(http.StatusOK, exps)
}

// ListRunningExperiments godoc
// @Summary List running experiments
// @Description Return every experiment still in the running state
// @Tags experiments
// @Produce json
// @Success 200 {array} experiment.Experiment
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /experiments/running [get]
func (h *Handler) ListRunningExperiments(c *gin.Context) {
	exps, err := h.orchestrator.ListRunning(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list running experiments", Code: models.ErrCodeInternalError})
		return
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	c.JSON(http.StatusOK, exps)
}

// CancelExperiment godoc
// @Summary Cancel an experiment
// @Description Abort a running experiment; terminal experiments are unaffected
// @Tags experiments
// @Produce json
// @Param id path string true "Experiment ID"
// @Success 200 {object} experiment.Experiment
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /experiments/{id}/cancel [post]
func (h *Handler) CancelExperiment(c *gin.Context) {
	id := c.Param("id")
	if err := h.orchestrator.Cancel(c.Request.Context(), id); err != nil {
		if errors.Is(err, experiment.ErrExperimentNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Experiment not found", Code: models.ErrCodeExperimentNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to cancel experiment", Code: models.ErrCodeInternalError})
		return
	}

	exp, err := h.orchestrator.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get experiment", Code: models.ErrCodeInternalError})
		return
	}
	c.JSON(http.StatusOK, exp)
}

func operatorID(c *gin.Context) string {
	if v, ok := c.Get(auth.OperatorIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
