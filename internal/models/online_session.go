package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the live room lifecycle.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "WAITING"
	RoomActive  RoomStatus = "ACTIVE"
	RoomEnded   RoomStatus = "ENDED"
)

// OnlineSession is the live-room projection of a converted session. It is
// created server-side the moment a conversion succeeds and moves to ENDED
// when the room concludes. RoomID is opaque to the agent; joining the room
// goes through the platform's room service.
type OnlineSession struct {
	ID             uuid.UUID  `json:"id"`
	SessionID      uuid.UUID  `json:"session_id"`
	RoomID         string     `json:"room_id"`
	RoomStatus     RoomStatus `json:"room_status"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	TutorID        uuid.UUID  `json:"tutor_id"`
	TutorName      string     `json:"tutor_name"`
	StudentID      uuid.UUID  `json:"student_id"`
	StudentName    string     `json:"student_name"`
}
