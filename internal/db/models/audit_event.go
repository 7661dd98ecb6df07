package models

import "time"

// EventType names a security relevant event.
type EventType string

// Audit event types.
const (
	EventLogin             EventType = "LOGIN"
	EventLoginFailed       EventType = "LOGIN_FAILED"
	EventLogout            EventType = "LOGOUT"
	EventProfileFetch      EventType = "PROFILE_FETCH"
	EventProfileUpdate     EventType = "PROFILE_UPDATE"
	EventMobileLogin       EventType = "MOBILE_LOGIN"
	EventMobileLoginFailed EventType = "MOBILE_LOGIN_FAILED"
)

// IsAuthentication reports whether a successful event of this type counts as a login.
func (t EventType) IsAuthentication() bool {
	return t == EventLogin || t == EventMobileLogin
}

// AuditEvent is an append-only record of a security event.
type AuditEvent struct {
	// ID is the unique identifier for the row.
	ID uint64 `gorm:"primaryKey"`
	// EventID is a random UUID identifying the event.
	EventID string `gorm:"size:36;uniqueIndex;not null"`
	// EventType is the kind of event.
	EventType EventType `gorm:"size:32;index;not null"`
	// ExternalID is the provider subject of the principal.
	ExternalID string `gorm:"size:255;index"`
	// Email is the email observed at event time.
	Email string `gorm:"size:255"`
	// UserID weakly references the local user, nil when unknown. No foreign key.
	UserID *uint64 `gorm:"index"`
	// IPAddress of the client.
	IPAddress string `gorm:"size:64"`
	// UserAgent of the client.
	UserAgent string `gorm:"size:512"`
	// Success of the audited action.
	Success bool
	// FailureReason is set on failed events, e.g. NOT_IN_ALLOWED_GROUP.
	FailureReason string `gorm:"size:255"`
	// EventTime is captured by the caller when the event happened.
	EventTime time.Time `gorm:"index;not null"`
	// CreatedAt is the persist time (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the AuditEvent model.
func (AuditEvent) TableName() string {
	return "audit_events"
}
