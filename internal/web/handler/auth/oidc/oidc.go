package oidc

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/audit"
	"github.com/staffmanagement/authservice/internal/auth"
	"github.com/staffmanagement/authservice/internal/db/models"
	"github.com/staffmanagement/authservice/internal/web/handler"
	"github.com/staffmanagement/authservice/internal/web/session"
)

const (
	// LoginPath is the path to initiate OIDC login.
	LoginPath = handler.RootPath + "auth/oidc/login"

	// CallbackPath is the path for OIDC callback.
	CallbackPath = auth.CallbackPath

	// LogoutPath is the path for OIDC logout.
	LogoutPath = handler.RootPath + "auth/oidc/logout"

	stateTTL      = 5 * time.Minute
	maxOpenStates = 10000
)

// Provider is the part of auth.OIDCProvider the handlers use.
type Provider interface {
	AuthURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (auth.Claims, string, error)
	LogoutURL(idToken, postLogoutRedirectURI string) string
}

// LoginGate evaluates an authenticated principal.
type LoginGate interface {
	EvaluateLogin(ctx context.Context, a auth.Attempt) auth.Decision
}

// Service is the OIDC handler service.
type Service struct {
	provider    Provider
	gate        LoginGate
	sessions    *session.Manager
	recorder    audit.Recorder
	redirectURL string
	// states maps state tokens to their nonce until the callback consumes them.
	states *expirable.LRU[string, string]
}

// Handler is the OIDC handler.
var Handler = Service{}

// Init initializes the OIDC handler. Routes are only registered when OIDC is configured.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) {
	if app == nil || deps == nil || deps.Gate == nil || deps.Sessions == nil {
		log.Fatal().Msg(handler.ErrNilDepsFatalLogMsg)
		return
	}

	if deps.OIDC == nil {
		log.Info().Msg("OIDC authentication is disabled by configuration")
		return
	}

	s.Setup(app, deps.OIDC, deps.Gate, deps.Sessions, deps.Recorder, deps.Config.Webserver.URL)

	log.Info().Msg("OIDC authentication handlers registered")
}

// Setup registers the routes on app with explicit collaborators.
func (s *Service) Setup(
	app *fiber.App,
	provider Provider,
	gate LoginGate,
	sessions *session.Manager,
	recorder audit.Recorder,
	redirectURL string,
) {
	s.provider = provider
	s.gate = gate
	s.sessions = sessions
	s.recorder = recorder
	s.redirectURL = redirectURL
	s.states = expirable.NewLRU[string, string](maxOpenStates, nil, stateTTL)

	if s.redirectURL == "" {
		s.redirectURL = handler.RootPath
	}

	app.Get(LoginPath, s.Login)
	app.Get(CallbackPath, s.Callback)
	app.Get(LogoutPath, s.Logout)
}

// Login initiates the OIDC login flow.
func (s *Service) Login(c *fiber.Ctx) error {
	state, err := auth.GenerateStateToken()
	if err != nil {
		return err
	}

	nonce, err := auth.GenerateStateToken()
	if err != nil {
		return err
	}

	s.states.Add(state, nonce)

	return c.Redirect(s.provider.AuthURL(state, nonce))
}

// Callback exchanges the code and lets the gate decide.
func (s *Service) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	if code == "" || state == "" {
		return fiber.NewError(fiber.StatusBadRequest, "invalid callback parameters")
	}

	nonce, ok := s.states.Get(state)
	if !ok {
		log.Warn().Msg("unknown or expired OIDC state")
		return fiber.NewError(fiber.StatusBadRequest, "invalid state token")
	}

	s.states.Remove(state)

	eventTime := time.Now()

	claims, rawIDToken, err := s.provider.Exchange(c.UserContext(), code, nonce)
	if err != nil {
		log.Warn().Err(err).Msg("OIDC authentication failed")

		s.record(c, audit.Event{
			Type:          models.EventLogin,
			FailureReason: audit.ReasonInvalidToken,
			EventTime:     eventTime,
		})

		return fiber.NewError(fiber.StatusUnauthorized, "authentication failed")
	}

	decision := s.gate.EvaluateLogin(c.UserContext(), auth.Attempt{
		Claims:    claims,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Channel:   auth.ChannelWeb,
		IDToken:   rawIDToken,
	})
	if !decision.Allow {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":  "access denied",
			"reason": decision.Reason,
		})
	}

	s.sessions.SetCookie(c, decision.SessionID)

	return c.Redirect(s.redirectURL)
}

// Logout drops the session and redirects to the provider end session endpoint when it has one.
func (s *Service) Logout(c *fiber.Ctx) error {
	data, sessionID, err := s.sessions.FromRequest(c)
	if err == nil {
		if err = s.sessions.Delete(sessionID); err != nil {
			log.Error().Err(err).Msg("failed to delete session")
		}

		s.record(c, audit.Event{
			Type:      models.EventLogout,
			Subject:   data.Subject,
			Email:     data.Email,
			Success:   true,
			EventTime: time.Now(),
		})
	}

	s.sessions.ClearCookie(c)

	idToken := ""
	if data != nil {
		idToken = data.IDToken
	}

	if logoutURL := s.provider.LogoutURL(idToken, s.redirectURL); logoutURL != "" {
		return c.Redirect(logoutURL)
	}

	return c.Redirect(s.redirectURL)
}

func (s *Service) record(c *fiber.Ctx, e audit.Event) {
	if s.recorder == nil {
		return
	}

	e.IP = c.IP()
	e.UserAgent = c.Get(fiber.HeaderUserAgent)

	s.recorder.Record(c.UserContext(), e)
}
