// Package mobile provides the login endpoint of the mobile app. The app authenticates against the
// identity provider itself and presents the ID token as a bearer token.
package mobile

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/audit"
	"github.com/staffmanagement/authservice/internal/auth"
	"github.com/staffmanagement/authservice/internal/db/models"
	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/web/handler"
	"github.com/staffmanagement/authservice/internal/web/session"
)

// Path is the mobile login endpoint.
const Path = handler.APIPath + "auth/sync"

// Verifier checks a bearer ID token.
type Verifier interface {
	VerifyBearer(ctx context.Context, rawIDToken string) (auth.Claims, error)
}

// LoginGate evaluates an authenticated principal.
type LoginGate interface {
	EvaluateLogin(ctx context.Context, a auth.Attempt) auth.Decision
}

// UserResponse is returned to an admitted app.
type UserResponse struct {
	ID          uint64   `json:"id"`
	Subject     string   `json:"subject"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	Roles       []string `json:"roles"`
	Authorities []string `json:"authorities"`
	SessionID   string   `json:"sessionId"`
}

// Service is the mobile login handler service.
type Service struct {
	verifier Verifier
	gate     LoginGate
	sessions *session.Manager
	recorder audit.Recorder
	policy   policy.Policy
}

// Handler is the mobile login handler.
var Handler = Service{}

// Init registers the route when OIDC is configured.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) {
	if app == nil || deps == nil || deps.Gate == nil || deps.Sessions == nil {
		log.Fatal().Msg(handler.ErrNilDepsFatalLogMsg)
		return
	}

	if deps.OIDC == nil {
		return
	}

	s.Setup(app, deps.OIDC, deps.Gate, deps.Sessions, deps.Recorder, deps.Policy)
}

// Setup registers the route on app with explicit collaborators.
func (s *Service) Setup(
	app *fiber.App,
	verifier Verifier,
	gate LoginGate,
	sessions *session.Manager,
	recorder audit.Recorder,
	p policy.Policy,
) {
	s.verifier = verifier
	s.gate = gate
	s.sessions = sessions
	s.recorder = recorder
	s.policy = p

	app.Post(Path, s.Sync)
}

// Sync verifies the bearer token and runs the mobile login through the gate.
func (s *Service) Sync(c *fiber.Ctx) error {
	eventTime := time.Now()

	raw := bearerToken(c.Get(fiber.HeaderAuthorization))
	if raw == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}

	claims, err := s.verifier.VerifyBearer(c.UserContext(), raw)
	if err != nil {
		log.Warn().Err(err).Msg("mobile token rejected")

		if s.recorder != nil {
			s.recorder.Record(c.UserContext(), audit.Event{
				Type:          models.EventMobileLoginFailed,
				IP:            c.IP(),
				UserAgent:     c.Get(fiber.HeaderUserAgent),
				FailureReason: audit.ReasonInvalidToken,
				EventTime:     eventTime,
			})
		}

		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	decision := s.gate.EvaluateLogin(c.UserContext(), auth.Attempt{
		Claims:    claims,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Channel:   auth.ChannelMobile,
		IDToken:   raw,
	})
	if !decision.Allow {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":  "access denied",
			"reason": decision.Reason,
		})
	}

	s.sessions.SetCookie(c, decision.SessionID)

	u := decision.User

	return c.JSON(UserResponse{
		ID:          u.ID,
		Subject:     u.ExternalID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Locale:      u.Locale,
		Roles:       decision.Roles,
		Authorities: s.policy.Authorities(decision.Roles),
		SessionID:   decision.SessionID,
	})
}

func bearerToken(header string) string {
	const prefix = "bearer "

	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(header[len(prefix):])
}
