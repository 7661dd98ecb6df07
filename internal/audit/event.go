// Package audit records security events best effort. Recording never fails the caller:
// lookup, update and persist errors are logged and swallowed.
package audit

import (
	"context"
	"time"

	"github.com/staffmanagement/authservice/internal/db/models"
)

// Failure reasons used by the login gate.
const (
	ReasonNotInAllowedGroup = "NOT_IN_ALLOWED_GROUP"
	ReasonUserSyncFailed    = "USER_SYNC_FAILED"
	ReasonSessionFailed     = "SESSION_FAILED"
	ReasonInvalidToken      = "INVALID_TOKEN"
)

// Event is a security event as observed by the caller.
type Event struct {
	Type          models.EventType
	Subject       string
	Email         string
	IP            string
	UserAgent     string
	Success       bool
	FailureReason string
	// EventTime is when the event happened. Zero means now at the time of recording.
	EventTime time.Time
}

// Recorder records events. Implementations must not panic and must not block for long.
type Recorder interface {
	Record(ctx context.Context, e Event)
}
