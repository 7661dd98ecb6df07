package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/db/models"
)

// UserStore is the part of the identity store the writer needs.
type UserStore interface {
	FindUserByExternalID(ctx context.Context, subject string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, userID uint64, at time.Time) error
}

// EventStore persists audit events.
type EventStore interface {
	Append(ctx context.Context, event *models.AuditEvent) error
}

// Writer records events synchronously.
type Writer struct {
	users  UserStore
	events EventStore
}

// NewWriter creates a synchronous writer.
func NewWriter(users UserStore, events EventStore) *Writer {
	return &Writer{users: users, events: events}
}

// Record resolves the local user, advances its last login on successful logins and
// appends the event with the caller supplied event time. Failures are logged only.
func (w *Writer) Record(ctx context.Context, e Event) {
	defer func() {
		if r := recover(); r != nil {
			observe(e.Type, outcomeFailed)
			log.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Str("event_type", string(e.Type)).
				Str("subject", e.Subject).
				Msg("audit record panicked")
		}
	}()

	if e.EventTime.IsZero() {
		e.EventTime = time.Now()
	}

	user := w.lookupUser(ctx, e)

	row := &models.AuditEvent{
		EventID:       uuid.NewString(),
		EventType:     e.Type,
		ExternalID:    e.Subject,
		Email:         e.Email,
		IPAddress:     e.IP,
		UserAgent:     e.UserAgent,
		Success:       e.Success,
		FailureReason: e.FailureReason,
		EventTime:     e.EventTime.UTC(),
	}

	if user != nil {
		row.UserID = &user.ID

		if e.Success && e.Type.IsAuthentication() {
			if err := w.users.TouchLastLogin(ctx, user.ID, e.EventTime); err != nil {
				log.Warn().Err(err).Uint64("user_id", user.ID).Msg("failed to update last login")
			}
		}
	}

	if err := w.events.Append(ctx, row); err != nil {
		observe(e.Type, outcomeFailed)
		log.Error().Err(err).
			Str("event_type", string(e.Type)).
			Str("subject", e.Subject).
			Msg("failed to persist audit event")

		return
	}

	observe(e.Type, outcomePersisted)
}

// lookupUser finds the user by subject, then by email. A miss is not an error.
func (w *Writer) lookupUser(ctx context.Context, e Event) *models.User {
	if w.users == nil {
		return nil
	}

	user, err := w.users.FindUserByExternalID(ctx, e.Subject)
	if err == nil {
		return user
	}

	if !errors.Is(err, identity.ErrUserNotFound) {
		log.Warn().Err(err).Str("subject", e.Subject).Msg("audit user lookup by subject failed")
	}

	user, err = w.users.FindUserByEmail(ctx, e.Email)
	if err == nil {
		return user
	}

	if !errors.Is(err, identity.ErrUserNotFound) {
		log.Warn().Err(err).Str("email", e.Email).Msg("audit user lookup by email failed")
	}

	return nil
}
