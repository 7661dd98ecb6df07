package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/web/session"
)

const (
	localsSession = "session"
	localsUserID  = "user_id"
)

// RoleLister loads the current roles of a user.
type RoleLister interface {
	ListRoleNamesForUser(ctx context.Context, userID uint64) ([]string, error)
}

// RequireSession creates Fiber middleware that requires a valid session cookie.
func RequireSession(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, _, err := sessions.FromRequest(c)
		if err != nil || data.UserID == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}

		c.Locals(localsSession, data)
		c.Locals(localsUserID, data.UserID)

		return c.Next()
	}
}

// RequireRole creates Fiber middleware that requires the authority of role, e.g. ROLE_ADMIN.
// Roles are loaded from the store on every request so revocations apply immediately.
func RequireRole(p policy.Policy, sessions *session.Manager, roles RoleLister, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, _, err := sessions.FromRequest(c)
		if err != nil || data.UserID == 0 {
			log.Debug().Err(err).Msg("no valid session")
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}

		c.Locals(localsSession, data)
		c.Locals(localsUserID, data.UserID)

		current, err := roles.ListRoleNamesForUser(c.UserContext(), data.UserID)
		if err != nil {
			log.Error().Err(err).Uint64("user_id", data.UserID).Msg("failed to load roles")
			return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
		}

		if !p.HasAuthority(current, role) {
			log.Warn().Uint64("user_id", data.UserID).Strs("authorities", p.Authorities(current)).
				Str("required", role).
				Msg("user lacks required role")

			return fiber.NewError(fiber.StatusForbidden, "Forbidden")
		}

		return c.Next()
	}
}

// SessionFromContext returns the session stored by RequireSession or RequireRole.
func SessionFromContext(c *fiber.Ctx) *session.Data {
	data, _ := c.Locals(localsSession).(*session.Data)
	return data
}
