package recorder

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/capture"
	"github.com/tutorlane/liveclient/pkg/response"
)

// Handler exposes recording control over HTTP.
type Handler struct {
	svc   *Service
	probe *capture.Probe
	log   *zap.Logger
}

// NewHandler creates the recording handler.
func NewHandler(svc *Service, probe *capture.Probe, log *zap.Logger) *Handler {
	return &Handler{svc: svc, probe: probe, log: log}
}

type startRequest struct {
	PreferScreen bool `json:"prefer_screen"`
}

// Start begins recording the session's live room.
// POST /sessions/:id/recording/start
func (h *Handler) Start(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req startRequest
	_ = c.ShouldBindJSON(&req) // body optional, defaults to camera-first

	rec, err := h.svc.Start(c.Request.Context(), sessionID, req.PreferScreen)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRecording):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrUnavailable):
			// Recording is an optional enhancement; tell the UI it cannot
			// record, the live session itself is unaffected.
			response.ServiceUnavailable(c, "recording unavailable on this machine")
		default:
			h.log.Error("start recording", zap.Error(err))
			response.Internal(c, "could not start recording")
		}
		return
	}
	response.Created(c, rec)
}

// Stop ends the session's recording.
// POST /sessions/:id/recording/stop
func (h *Handler) Stop(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	rec, err := h.svc.Stop(sessionID)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, rec)
}

// Support reports recording capability and the chosen container profile.
// GET /recording/support
func (h *Handler) Support(c *gin.Context) {
	if !h.probe.Supported() {
		response.OK(c, gin.H{"supported": false})
		return
	}
	profile, ok := h.probe.BestProfile()
	if !ok {
		response.OK(c, gin.H{"supported": false})
		return
	}
	response.OK(c, gin.H{"supported": true, "profile": profile})
}
