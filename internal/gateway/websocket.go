package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brandworks/social-automation/publication-governor/internal/experiment"
)

var wsTracer = otel.Tracer("experiment-stream")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
}

// ExperimentStream streams experiment lifecycle events to dashboard
// WebSocket clients.
type ExperimentStream struct {
	orchestrator *experiment.Orchestrator
	logger       *logrus.Logger
	tracer       trace.Tracer
}

// NewExperimentStream creates a new experiment event streamer
func NewExperimentStream(orch *experiment.Orchestrator, logger *logrus.Logger) *ExperimentStream {
	return &ExperimentStream{
		orchestrator: orch,
		logger:       logger,
		tracer:       wsTracer,
	}
}

// Stream handles WebSocket /api/ws/experiments/:id
// @Summary Stream experiment progress
// @Description WebSocket endpoint to stream real-time experiment lifecycle events
// @Tags experiments
// @Param id path string true "Experiment ID"
// @Param Authorization header string true "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/experiments/{id} [get]
func (s *ExperimentStream) Stream(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "experiment_stream.stream")
	defer span.End()

	experimentID := c.Param("id")
	span.SetAttributes(attribute.String("experiment.id", experimentID))

	exp, err := s.orchestrator.Get(ctx, experimentID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, experiment.ErrExperimentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Experiment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get experiment"})
		return
	}

	// Subscribe before upgrading so no event is lost between the
	// snapshot and the live stream.
	events, unsubscribe := s.orchestrator.Subscribe(experimentID)
	defer unsubscribe()

	clientConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		s.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}
	defer clientConn.Close()

	s.logger.WithField("experiment", experimentID).Info("Experiment stream connected")

	// Send the current state first so late subscribers see where the
	// run already is.
	if err := clientConn.WriteJSON(exp); err != nil {
		s.logger.WithError(err).Warn("Failed to send experiment snapshot")
		return
	}

	if exp.Terminal() {
		clientConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "experiment finished"))
		return
	}

	// Client -> ignore (one-way stream); reads only detect disconnects.
	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := clientConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientClosed:
			s.logger.WithField("experiment", experimentID).Info("Experiment stream client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			clientConn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := clientConn.WriteJSON(ev); err != nil {
				s.logger.WithError(err).Warn("Experiment stream write failed")
				return
			}
			if ev.Type == experiment.EventCompleted || ev.Type == experiment.EventFailed {
				clientConn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "experiment finished"))
				return
			}
		}
	}
}
