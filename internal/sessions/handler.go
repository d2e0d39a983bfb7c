package sessions

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/pkg/response"
)

// Handler serves the cached read views.
type Handler struct {
	reader *Reader
	log    *zap.Logger
}

// NewHandler creates the sessions read handler.
func NewHandler(reader *Reader, log *zap.Logger) *Handler {
	return &Handler{reader: reader, log: log}
}

// List returns one page of sessions for a month.
// GET /sessions?month=2024-05&page=0&size=20
func (h *Handler) List(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		month = time.Now().Format("2006-01")
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := h.reader.ByMonth(c.Request.Context(), month, page, size)
	if err != nil {
		h.log.Warn("list sessions", zap.Error(err))
		response.BadGateway(c, "session service unavailable")
		return
	}
	response.OK(c, result)
}

// Live returns the caller's currently live session, if any.
// GET /sessions/live
func (h *Handler) Live(c *gin.Context) {
	live, err := h.reader.CurrentLive(c.Request.Context())
	if err != nil {
		h.log.Warn("live session", zap.Error(err))
		response.BadGateway(c, "session service unavailable")
		return
	}
	if live == nil {
		response.OK(c, nil)
		return
	}
	response.OK(c, live)
}

// Online returns the online sessions listing.
// GET /sessions/online
func (h *Handler) Online(c *gin.Context) {
	list, err := h.reader.Online(c.Request.Context())
	if err != nil {
		h.log.Warn("online sessions", zap.Error(err))
		response.BadGateway(c, "session service unavailable")
		return
	}
	response.OK(c, list)
}
