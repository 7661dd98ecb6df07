// Package audit provides the admin API listing audit events.
package audit

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/auth"
	"github.com/staffmanagement/authservice/internal/db/controller/auditlog"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/db/models"
	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/web/handler"
	"github.com/staffmanagement/authservice/internal/web/session"
)

// Path is the audit log endpoint.
const Path = handler.APIPath + "admin/audit-log"

// Query holds the accepted query parameters. Range bounds are RFC 3339 timestamps.
type Query struct {
	UserID     uint64 `query:"user_id"`
	Subject    string `query:"subject"`
	EventType  string `query:"type"       validate:"omitempty,oneof=LOGIN LOGIN_FAILED LOGOUT PROFILE_FETCH PROFILE_UPDATE MOBILE_LOGIN MOBILE_LOGIN_FAILED"` //nolint:lll
	RangeStart string `query:"rangeStart" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	RangeEnd   string `query:"rangeEnd"   validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Order      string `query:"order"      validate:"omitempty,oneof=asc desc"`
	Limit      int    `query:"limit"      validate:"omitempty,min=1,max=1000"`
}

// Event is the JSON form of an audit event.
type Event struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	ExternalID    string    `json:"externalId,omitempty"`
	Email         string    `json:"email,omitempty"`
	UserID        *uint64   `json:"userId,omitempty"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
	EventTime     time.Time `json:"eventTime"`
}

// Service serves the audit log.
type Service struct {
	store     *auditlog.Store
	validator *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers the route behind the admin role.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) {
	if app == nil || deps == nil || deps.AuditLog == nil || deps.Identity == nil || deps.Sessions == nil {
		log.Fatal().Msg(handler.ErrNilDepsFatalLogMsg)
		return
	}

	s.Setup(app, deps.AuditLog, deps.Identity, deps.Sessions, deps.Policy)
}

// Setup registers the route on app with explicit collaborators.
func (s *Service) Setup(
	app *fiber.App,
	store *auditlog.Store,
	users *identity.Store,
	sessions *session.Manager,
	p policy.Policy,
) {
	s.store = store
	s.validator = validator.New()

	app.Get(Path, auth.RequireRole(p, sessions, users, p.AdminRole), s.List)
}

// List returns events matching the query, newest first unless order=asc.
func (s *Service) List(c *fiber.Ctx) error {
	var q Query
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query")
	}

	if err := s.validator.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query: "+err.Error())
	}

	f := auditlog.Filter{
		ExternalID: q.Subject,
		EventType:  models.EventType(q.EventType),
		Ascending:  q.Order == "asc",
		Limit:      q.Limit,
	}

	if q.UserID > 0 {
		f.UserID = &q.UserID
	}

	// already validated
	f.From, _ = parseTime(q.RangeStart)
	f.To, _ = parseTime(q.RangeEnd)

	events, err := s.store.List(c.UserContext(), f)
	if err != nil {
		return handler.Error(c, err)
	}

	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, Event{
			EventID:       e.EventID,
			EventType:     string(e.EventType),
			ExternalID:    e.ExternalID,
			Email:         e.Email,
			UserID:        e.UserID,
			IPAddress:     e.IPAddress,
			UserAgent:     e.UserAgent,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			EventTime:     e.EventTime,
		})
	}

	return c.JSON(out)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, v)
}
