package conversion

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tutorlane/liveclient/internal/sessionapi"
)

// Reason classifies why a conversion attempt was rejected.
type Reason string

const (
	ReasonForbidden      Reason = "forbidden"
	ReasonAlreadyOnline  Reason = "already_online"
	ReasonNotConvertible Reason = "not_convertible"
	ReasonUnknown        Reason = "unknown"
)

// ErrConversionInFlight is returned when a conversion for the same session
// is already optimistically applied and awaiting the remote result.
var ErrConversionInFlight = errors.New("conversion already in flight for this session")

// ConversionError is the user-facing classification of a failed remote
// call. The cache has already been rolled back by the time it is surfaced.
type ConversionError struct {
	Reason      Reason
	Message     string
	Description string
	Err         error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Classify maps a remote failure onto the user-facing taxonomy.
func Classify(err error) *ConversionError {
	var apiErr *sessionapi.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusForbidden:
			return &ConversionError{
				Reason:      ReasonForbidden,
				Message:     "Permission denied",
				Description: "Only the tutor who owns this session can change how it is delivered.",
				Err:         err,
			}
		case http.StatusConflict:
			return &ConversionError{
				Reason:      ReasonAlreadyOnline,
				Message:     "Session is already online",
				Description: "This session was already converted. Check the live sessions list.",
				Err:         err,
			}
		case http.StatusBadRequest:
			return &ConversionError{
				Reason:      ReasonNotConvertible,
				Message:     "Session cannot be converted",
				Description: "Only sessions that have not started yet can be taken online.",
				Err:         err,
			}
		default:
			msg := "Conversion failed"
			if apiErr.Message != "" {
				msg = apiErr.Message
			}
			return &ConversionError{Reason: ReasonUnknown, Message: msg, Description: "The session service rejected the request. Try again.", Err: err}
		}
	}
	return &ConversionError{
		Reason:      ReasonUnknown,
		Message:     "Conversion failed",
		Description: "The session service could not be reached. Try again.",
		Err:         err,
	}
}
