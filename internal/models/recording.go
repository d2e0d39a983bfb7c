package models

import (
	"time"

	"github.com/google/uuid"
)

// Recording lifecycle.
const (
	RecordingStatusRecording = "recording"
	RecordingStatusStopped   = "stopped"
	RecordingStatusFailed    = "failed"
)

// Recording describes one local recording of a live session.
type Recording struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	Container   string     `json:"container"`
	VideoSource string     `json:"video_source"`
	AudioSource string     `json:"audio_source,omitempty"`
	OutputPath  string     `json:"output_path"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
}
