package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a tutoring session.
type SessionStatus string

const (
	StatusScheduled          SessionStatus = "SCHEDULED"
	StatusConfirmed          SessionStatus = "CONFIRMED"
	StatusCompleted          SessionStatus = "COMPLETED"
	StatusPendingPayment     SessionStatus = "PENDING_PAYMENT"
	StatusPaid               SessionStatus = "PAID"
	StatusCancelledByStudent SessionStatus = "CANCELLED_BY_STUDENT"
	StatusCancelledByTutor   SessionStatus = "CANCELLED_BY_TUTOR"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusPaid, StatusCancelledByStudent, StatusCancelledByTutor:
		return true
	}
	return false
}

// Session is a scheduled tutoring session. The remote session service owns
// the authoritative record; the agent holds short-lived, possibly stale
// copies in its view cache.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	StudentID   uuid.UUID     `json:"student_id"`
	StudentName string        `json:"student_name"`
	TutorID     uuid.UUID     `json:"tutor_id"`
	TutorName   string        `json:"tutor_name"`
	StartsAt    time.Time     `json:"starts_at"`
	EndsAt      time.Time     `json:"ends_at"`
	IsOnline    bool          `json:"is_online"`
	Status      SessionStatus `json:"status"`
	// Version increases on every status update; used by the session
	// service for optimistic concurrency.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Convertible reports whether the session is in a state the service would
// accept for online conversion. The service re-checks this; the agent only
// uses it for early UI hints.
func (s Session) Convertible(now time.Time) bool {
	if s.IsOnline || s.Status.Terminal() || s.Status == StatusCompleted {
		return false
	}
	return now.Before(s.StartsAt)
}

// Page is the paginated envelope the session service returns for listings.
type Page struct {
	Content       []Session `json:"content"`
	Page          int       `json:"page"`
	Size          int       `json:"size"`
	TotalElements int64     `json:"total_elements"`
	TotalPages    int       `json:"total_pages"`
}
