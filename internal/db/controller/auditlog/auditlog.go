// Package auditlog appends and lists audit events. Events are never updated or deleted.
package auditlog

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/staffmanagement/authservice/internal/db/models"
)

const (
	// DefaultLimit caps List when the filter sets no limit.
	DefaultLimit = 100
	// MaxLimit is the largest accepted limit.
	MaxLimit = 1000
)

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrEventNil is returned when appending a nil event.
	ErrEventNil = errors.New("audit event is nil")
	// ErrInvalidRange is returned when the range end is before its start.
	ErrInvalidRange = errors.New("audit range end is before range start")
)

// Filter narrows List. Zero values do not filter.
type Filter struct {
	UserID     *uint64
	ExternalID string
	EventType  models.EventType
	From       time.Time // inclusive
	To         time.Time // inclusive
	Ascending  bool      // oldest first, newest first otherwise
	Limit      int
}

// Store wraps a gorm connection.
type Store struct {
	db *gorm.DB
}

// New creates a store on top of db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append persists an event.
func (s *Store) Append(ctx context.Context, event *models.AuditEvent) error {
	if s == nil || s.db == nil {
		return ErrDBNil
	}

	if event == nil {
		return ErrEventNil
	}

	return s.db.WithContext(ctx).Create(event).Error
}

// List returns events ordered by event time.
func (s *Store) List(ctx context.Context, f Filter) ([]models.AuditEvent, error) {
	if s == nil || s.db == nil {
		return nil, ErrDBNil
	}

	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, ErrInvalidRange
	}

	q := s.db.WithContext(ctx).Model(&models.AuditEvent{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	if f.ExternalID != "" {
		q = q.Where("external_id = ?", f.ExternalID)
	}

	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}

	if !f.From.IsZero() {
		q = q.Where("event_time >= ?", f.From.UTC())
	}

	if !f.To.IsZero() {
		q = q.Where("event_time <= ?", f.To.UTC())
	}

	if f.Ascending {
		q = q.Order("event_time ASC").Order("id ASC")
	} else {
		q = q.Order("event_time DESC").Order("id DESC")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	if limit > MaxLimit {
		limit = MaxLimit
	}

	var events []models.AuditEvent
	if result := q.Limit(limit).Find(&events); result.Error != nil {
		return nil, result.Error
	}

	return events, nil
}
