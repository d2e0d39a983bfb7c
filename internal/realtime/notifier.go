package realtime

import (
	"github.com/google/uuid"

	"github.com/tutorlane/liveclient/internal/conversion"
	"github.com/tutorlane/liveclient/internal/models"
)

// Notifier adapts the hub to the conversion coordinator's outcomes.
type Notifier struct {
	hub *Hub
}

// NewNotifier wraps the hub for the coordinator.
func NewNotifier(hub *Hub) *Notifier { return &Notifier{hub: hub} }

type joinAction struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// ConversionSucceeded tells the user the session is online and offers a
// direct way into the room.
func (n *Notifier) ConversionSucceeded(userID uuid.UUID, online *models.OnlineSession) {
	n.hub.NotifyUserEverywhere(userID, "session_converted", map[string]interface{}{
		"session_id":  online.SessionID,
		"room_id":     online.RoomID,
		"room_status": online.RoomStatus,
		"message":     "Session is now online",
		"action":      joinAction{Type: "join_room", RoomID: online.RoomID},
	})
}

// ReversionSucceeded tells the user the session is back offline.
func (n *Notifier) ReversionSucceeded(userID uuid.UUID, sessionID uuid.UUID) {
	n.hub.NotifyUserEverywhere(userID, "session_reverted", map[string]interface{}{
		"session_id": sessionID,
		"message":    "Session is back to in-person",
	})
}

// ConversionFailed surfaces the classified failure. The cache was rolled
// back before this fires, so the UI re-renders the pre-transaction state
// alongside the message.
func (n *Notifier) ConversionFailed(userID uuid.UUID, sessionID uuid.UUID, reason *conversion.ConversionError) {
	n.hub.NotifyUserEverywhere(userID, "conversion_failed", map[string]interface{}{
		"session_id":  sessionID,
		"reason":      reason.Reason,
		"message":     reason.Message,
		"description": reason.Description,
	})
}
