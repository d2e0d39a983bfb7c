package conversion

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/identity"
	"github.com/tutorlane/liveclient/pkg/response"
)

// Handler exposes the conversion transactions over HTTP.
type Handler struct {
	coordinator *Coordinator
	log         *zap.Logger
}

// NewHandler creates the conversion handler.
func NewHandler(coordinator *Coordinator, log *zap.Logger) *Handler {
	return &Handler{coordinator: coordinator, log: log}
}

// Convert transitions a session to an online room.
// POST /sessions/:id/convert
func (h *Handler) Convert(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	caller, _ := identity.FromContext(c.Request.Context())

	online, err := h.coordinator.ConvertToOnline(c.Request.Context(), caller.UserID, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, online)
}

// Revert takes a converted session back offline.
// POST /sessions/:id/revert
func (h *Handler) Revert(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	caller, _ := identity.FromContext(c.Request.Context())

	if err := h.coordinator.RevertToOffline(c.Request.Context(), caller.UserID, sessionID); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"reverted": true})
}

// writeError maps the conversion taxonomy onto HTTP. The cache was already
// rolled back before the error reached here.
func (h *Handler) writeError(c *gin.Context, err error) {
	if errors.Is(err, ErrConversionInFlight) {
		response.Conflict(c, "a conversion for this session is already in progress")
		return
	}
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		response.Internal(c, "conversion failed")
		return
	}
	body := gin.H{"message": convErr.Message, "description": convErr.Description, "reason": convErr.Reason}
	switch convErr.Reason {
	case ReasonForbidden:
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": convErr.Message, "data": body})
	case ReasonAlreadyOnline:
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": convErr.Message, "data": body})
	case ReasonNotConvertible:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": convErr.Message, "data": body})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": convErr.Message, "data": body})
	}
}
